// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/meteorcrawler/meteorcrawler/internal/version"
)

// DockerConfig contains registry settings.
type DockerConfig struct {
	// User is the Docker Hub account images are pushed under.
	// Env: METEORCRAWLER_DOCKER_USER, DOCKER_HUB_USER. Required.
	User string `json:"user" yaml:"user" mapstructure:"user"`

	// HubURL is the Docker Hub API base URL.
	HubURL string `json:"hubURL" yaml:"hubURL" mapstructure:"hubURL"`

	// MeteorRepo holds the Meteor release images.
	MeteorRepo string `json:"meteorRepo" yaml:"meteorRepo" mapstructure:"meteorRepo"`

	// AlpineRepo holds the Alpine Node.js builder images.
	AlpineRepo string `json:"alpineRepo" yaml:"alpineRepo" mapstructure:"alpineRepo"`

	// TestRepo holds one image per passed smoke test.
	TestRepo string `json:"testRepo" yaml:"testRepo" mapstructure:"testRepo"`

	// MinimeteorRepo holds the variants tested against Meteor images.
	MinimeteorRepo string `json:"minimeteorRepo" yaml:"minimeteorRepo" mapstructure:"minimeteorRepo"`
}

// GitHubConfig contains upstream source settings.
type GitHubConfig struct {
	// Token authenticates API requests.
	// Env: METEORCRAWLER_GITHUB_TOKEN, METEORCRAWLER_GITHUB_OAUTH_TOKEN. Required.
	Token string `json:"token" yaml:"token" mapstructure:"token"`

	// APIURL is the GitHub API base URL.
	APIURL string `json:"apiURL" yaml:"apiURL" mapstructure:"apiURL"`

	// Owner and Repo locate the release tags.
	Owner string `json:"owner" yaml:"owner" mapstructure:"owner"`
	Repo  string `json:"repo" yaml:"repo" mapstructure:"repo"`

	// ScriptOwner and ScriptRepo host the build script tested on Branches.
	ScriptOwner string   `json:"scriptOwner" yaml:"scriptOwner" mapstructure:"scriptOwner"`
	ScriptRepo  string   `json:"scriptRepo" yaml:"scriptRepo" mapstructure:"scriptRepo"`
	Branches    []string `json:"branches" yaml:"branches" mapstructure:"branches"`
}

// NotifyConfig contains mail settings.
type NotifyConfig struct {
	// Email receives every notification.
	// Env: METEORCRAWLER_NOTIFY_EMAIL, EMAIL_ADDRESS. Required.
	Email string `json:"email" yaml:"email" mapstructure:"email"`

	// Sendmail is the mail transfer program.
	Sendmail string `json:"sendmail" yaml:"sendmail" mapstructure:"sendmail"`

	// SubjectTag prefixes every subject.
	SubjectTag string `json:"subjectTag" yaml:"subjectTag" mapstructure:"subjectTag"`
}

// QueueConfig contains queue storage settings.
type QueueConfig struct {
	// Dir holds the queue files.
	// Env: METEORCRAWLER_QUEUE_DIR, METEORCRAWLER_DIR. Default: ~/.meteorcrawler
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// BuildConfig contains image build settings.
type BuildConfig struct {
	// Timeout bounds docker build and run, in seconds.
	Timeout int `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MinVersion is the oldest upstream release that is built.
	MinVersion string `json:"minVersion" yaml:"minVersion" mapstructure:"minVersion"`
}

// TestConfig contains smoke test settings.
type TestConfig struct {
	Instance string `json:"instance" yaml:"instance" mapstructure:"instance"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Attempts int    `json:"attempts" yaml:"attempts" mapstructure:"attempts"`

	// Interval is a Go duration string, e.g. "1s".
	Interval string `json:"interval" yaml:"interval" mapstructure:"interval"`

	// MinVersion is the oldest Meteor image tested.
	MinVersion string `json:"minVersion" yaml:"minVersion" mapstructure:"minVersion"`

	// MaxComponents limits tested tags to this many version components.
	MaxComponents int `json:"maxComponents" yaml:"maxComponents" mapstructure:"maxComponents"`

	// RescheduleOnFailure spools the next test even after a failure. On by
	// default.
	RescheduleOnFailure bool `json:"rescheduleOnFailure" yaml:"rescheduleOnFailure" mapstructure:"rescheduleOnFailure"`
}

// SpoolConfig contains task spooler settings.
type SpoolConfig struct {
	Command string `json:"command" yaml:"command" mapstructure:"command"`
}

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Env: METEORCRAWLER_LOG_LEVEL, LOG_LEVEL. Default: info
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `json:"timestamps,omitempty" yaml:"timestamps,omitempty" mapstructure:"timestamps"`
}

// Config represents the meteorcrawler configuration.
// Loaded from ~/.meteorcrawler/config.yaml, validated against the embedded CUE schema.
type Config struct {
	Docker DockerConfig `json:"docker" yaml:"docker" mapstructure:"docker"`
	GitHub GitHubConfig `json:"github" yaml:"github" mapstructure:"github"`
	Notify NotifyConfig `json:"notify" yaml:"notify" mapstructure:"notify"`
	Queue  QueueConfig  `json:"queue" yaml:"queue" mapstructure:"queue"`
	Build  BuildConfig  `json:"build" yaml:"build" mapstructure:"build"`
	Test   TestConfig   `json:"test" yaml:"test" mapstructure:"test"`
	Spool  SpoolConfig  `json:"spool" yaml:"spool" mapstructure:"spool"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with all default values populated.
// Used by `meteorcrawler config init` to generate the initial config file.
func DefaultConfig() *Config {
	return &Config{
		Docker: DockerConfig{
			HubURL:         "https://hub.docker.com",
			MeteorRepo:     "meteor",
			AlpineRepo:     "meteor-alpinebuild",
			TestRepo:       "minimeteor-buildtest",
			MinimeteorRepo: "minimeteor",
		},
		GitHub: GitHubConfig{
			APIURL:      "https://api.github.com",
			Owner:       "meteor",
			Repo:        "meteor",
			ScriptOwner: "aedm",
			ScriptRepo:  "minimeteor",
			Branches:    []string{"master", "development"},
		},
		Notify: NotifyConfig{
			Sendmail:   "/usr/sbin/sendmail",
			SubjectTag: "[meteorcrawler]",
		},
		Queue: QueueConfig{
			Dir: "~/.meteorcrawler",
		},
		Build: BuildConfig{
			Timeout:    2400,
			MinVersion: "1.3",
		},
		Test: TestConfig{
			Instance:            "autominitest",
			Port:                3000,
			Attempts:            20,
			Interval:            "1s",
			MinVersion:          "1.3.3",
			MaxComponents:       3,
			RescheduleOnFailure: true,
		},
		Spool: SpoolConfig{
			Command: "tsp",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// BuildFloor parses Build.MinVersion.
func (c *Config) BuildFloor() (version.Release, error) {
	return parseFloor("build.minVersion", c.Build.MinVersion)
}

// TestFloor parses Test.MinVersion.
func (c *Config) TestFloor() (version.Release, error) {
	return parseFloor("test.minVersion", c.Test.MinVersion)
}

// TestInterval parses Test.Interval.
func (c *Config) TestInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Test.Interval)
	if err != nil {
		return 0, fmt.Errorf("test.interval: %w", err)
	}
	return d, nil
}

func parseFloor(key, s string) (version.Release, error) {
	r, ok := version.Parse(s)
	if !ok || r.IsPrerelease {
		return version.Release{}, fmt.Errorf("%s: %q is not a release version", key, s)
	}
	return r, nil
}
