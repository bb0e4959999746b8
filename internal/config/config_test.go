package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteorcrawler/meteorcrawler/internal/version"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "meteor", cfg.Docker.MeteorRepo)
	assert.Equal(t, "meteor-alpinebuild", cfg.Docker.AlpineRepo)
	assert.Equal(t, "minimeteor-buildtest", cfg.Docker.TestRepo)
	assert.Equal(t, "minimeteor", cfg.Docker.MinimeteorRepo)
	assert.Equal(t, []string{"master", "development"}, cfg.GitHub.Branches)
	assert.Equal(t, "autominitest", cfg.Test.Instance)
	assert.Equal(t, 20, cfg.Test.Attempts)
	assert.Equal(t, 3000, cfg.Test.Port)
	assert.True(t, cfg.Test.RescheduleOnFailure)
	assert.Equal(t, "tsp", cfg.Spool.Command)
	assert.Nil(t, cfg.Log.Timestamps)
}

func TestConfigParsedValues(t *testing.T) {
	cfg := DefaultConfig()

	floor, err := cfg.BuildFloor()
	require.NoError(t, err)
	assert.Equal(t, 0, version.Compare(version.MustParse("1.3"), floor))

	testFloor, err := cfg.TestFloor()
	require.NoError(t, err)
	assert.Equal(t, 0, version.Compare(version.MustParse("1.3.3"), testFloor))

	interval, err := cfg.TestInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Second, interval)
}

func TestConfigParsedValues_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Build.MinVersion = "1.3-beta"
	cfg.Test.MinVersion = "latest"
	cfg.Test.Interval = "soon"

	_, err := cfg.BuildFloor()
	assert.ErrorContains(t, err, "build.minVersion")
	_, err = cfg.TestFloor()
	assert.ErrorContains(t, err, "test.minVersion")
	_, err = cfg.TestInterval()
	assert.ErrorContains(t, err, "test.interval")
}
