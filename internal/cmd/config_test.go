package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/meteorcrawler/meteorcrawler/internal/config"
	"github.com/meteorcrawler/meteorcrawler/internal/testutil"
)

func TestConfigInit_WritesDefaults(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "nested", "config.yaml")

	out, err := h.run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var written config.Config
	require.NoError(t, yaml.Unmarshal([]byte(testutil.ReadFile(t, path)), &written))
	assert.Equal(t, *config.DefaultConfig(), written)
}

func TestConfigInit_ExistingConfig(t *testing.T) {
	h := newHarness(t)
	path := testutil.WriteFile(t, h.dir, "config.yaml", "docker:\n  user: someone\n")

	_, err := h.run(t, "config", "init")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCodeFromError(err))
	assert.Contains(t, err.Error(), "--force")
	assert.Contains(t, testutil.ReadFile(t, path), "someone")

	_, err = h.run(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.NotContains(t, testutil.ReadFile(t, path), "someone")
}

func TestConfigVet(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h := newHarness(t)
		testutil.WriteFile(t, h.dir, "config.yaml", "test:\n  attempts: 5\n")

		out, err := h.run(t, "config", "vet")

		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid")
	})

	t.Run("missing credentials", func(t *testing.T) {
		h := newHarness(t)
		h.setCredentials(t, "crawler", "", "")

		_, err := h.run(t, "config", "vet")

		require.Error(t, err)
		assert.Equal(t, ExitConfigError, ExitCodeFromError(err))
		assert.Contains(t, err.Error(), "github.token")
		assert.Contains(t, err.Error(), "notify.email")
		assert.NotContains(t, err.Error(), "docker.user")
	})

	t.Run("schema violation", func(t *testing.T) {
		h := newHarness(t)
		testutil.WriteFile(t, h.dir, "config.yaml", "log:\n  level: loud\n")

		_, err := h.run(t, "config", "vet")

		require.Error(t, err)
		assert.Equal(t, ExitConfigError, ExitCodeFromError(err))
		assert.Contains(t, err.Error(), "log.level")
	})
}
