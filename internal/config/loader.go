package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable prefix for meteorcrawler configuration.
const envPrefix = "METEORCRAWLER"

// legacyEnv maps keys to the environment variables older deployments set.
// The prefixed name is always checked first.
var legacyEnv = map[string]string{
	"docker.user":  "DOCKER_HUB_USER",
	"github.token": "METEORCRAWLER_GITHUB_OAUTH_TOKEN",
	"notify.email": "EMAIL_ADDRESS",
	"queue.dir":    "METEORCRAWLER_DIR",
	"log.level":    "LOG_LEVEL",
}

// Loader handles loading and merging configuration from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, envName(key), legacy)
	}

	return &Loader{v: v}
}

// envName returns the prefixed variable for key, e.g. METEORCRAWLER_QUEUE_DIR.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every key so that environment variables are picked
// up by Unmarshal even when the config file does not mention them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("docker.user", d.Docker.User)
	v.SetDefault("docker.hubURL", d.Docker.HubURL)
	v.SetDefault("docker.meteorRepo", d.Docker.MeteorRepo)
	v.SetDefault("docker.alpineRepo", d.Docker.AlpineRepo)
	v.SetDefault("docker.testRepo", d.Docker.TestRepo)
	v.SetDefault("docker.minimeteorRepo", d.Docker.MinimeteorRepo)

	v.SetDefault("github.token", d.GitHub.Token)
	v.SetDefault("github.apiURL", d.GitHub.APIURL)
	v.SetDefault("github.owner", d.GitHub.Owner)
	v.SetDefault("github.repo", d.GitHub.Repo)
	v.SetDefault("github.scriptOwner", d.GitHub.ScriptOwner)
	v.SetDefault("github.scriptRepo", d.GitHub.ScriptRepo)
	v.SetDefault("github.branches", d.GitHub.Branches)

	v.SetDefault("notify.email", d.Notify.Email)
	v.SetDefault("notify.sendmail", d.Notify.Sendmail)
	v.SetDefault("notify.subjectTag", d.Notify.SubjectTag)

	v.SetDefault("queue.dir", d.Queue.Dir)

	v.SetDefault("build.timeout", d.Build.Timeout)
	v.SetDefault("build.minVersion", d.Build.MinVersion)

	v.SetDefault("test.instance", d.Test.Instance)
	v.SetDefault("test.port", d.Test.Port)
	v.SetDefault("test.attempts", d.Test.Attempts)
	v.SetDefault("test.interval", d.Test.Interval)
	v.SetDefault("test.minVersion", d.Test.MinVersion)
	v.SetDefault("test.maxComponents", d.Test.MaxComponents)
	v.SetDefault("test.rescheduleOnFailure", d.Test.RescheduleOnFailure)

	v.SetDefault("spool.command", d.Spool.Command)

	v.SetDefault("log.level", d.Log.Level)
}

// Load loads configuration from the given file path.
// If configFile is empty, it uses the default config file path.
// Environment variables take precedence over file values, which take
// precedence over defaults. A missing file is not an error.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile == "" {
		var err error
		configFile, err = GetConfigFile()
		if err != nil {
			return nil, fmt.Errorf("getting config file path: %w", err)
		}
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	l.v.SetConfigFile(expandedPath)
	l.v.SetConfigType("yaml")

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Queue.Dir, err = ExpandPath(cfg.Queue.Dir)
	if err != nil {
		return nil, fmt.Errorf("expanding queue.dir: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the file the last Load read from.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}
