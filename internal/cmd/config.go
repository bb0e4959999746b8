package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meteorcrawler/meteorcrawler/internal/config"
	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
	"github.com/meteorcrawler/meteorcrawler/internal/output"
)

const configHeader = `# meteorcrawler configuration.
#
# Every key can be overridden by an environment variable named
# METEORCRAWLER_<SECTION>_<KEY>, e.g. METEORCRAWLER_DOCKER_USER. The required
# credentials are usually supplied that way:
#   DOCKER_HUB_USER, METEORCRAWLER_GITHUB_OAUTH_TOKEN, EMAIL_ADDRESS
`

// NewConfigCmd creates the config command group.
func NewConfigCmd(g *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage the meteorcrawler configuration",
	}

	c.AddCommand(newConfigInitCmd(g))
	c.AddCommand(newConfigVetCmd(g))

	return c
}

func newConfigInitCmd(g *GlobalConfig) *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Write a configuration file holding every setting with its default value.

The file is written to --config, METEORCRAWLER_CONFIG or
~/.meteorcrawler/config.yaml, in that order of precedence.`,
		Example: `  # Initialize configuration
  meteorcrawler config init

  # Overwrite existing configuration
  meteorcrawler config init --force`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withExitCode(runConfigInit(c, g, force))
		},
	}

	c.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return c
}

func resolveConfigPath(g *GlobalConfig) (string, error) {
	path := g.ConfigPath
	if path == "" {
		var err error
		path, err = config.GetConfigFile()
		if err != nil {
			return "", oerrors.Wrap(oerrors.ErrNotFound, "could not determine home directory")
		}
	}
	return config.ExpandPath(path)
}

func runConfigInit(c *cobra.Command, g *GlobalConfig, force bool) error {
	path, err := resolveConfigPath(g)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			return oerrors.NewValidationError("configuration already exists", path,
				"Use --force to overwrite existing configuration.")
		}
		output.Warn("overwriting existing configuration", "path", path)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config.DefaultConfig()); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return oerrors.NewNotWritableError(filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return oerrors.NewNotWritableError(path, err)
	}

	w := c.OutOrStdout()
	fmt.Fprintln(w, output.FormatCheckmark("Configuration written to "+path))
	fmt.Fprintln(w, "Validate with: meteorcrawler config vet")
	return nil
}

func newConfigVetCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "vet",
		Short: "Validate the configuration",
		Long: `Validate the meteorcrawler configuration.

Checks performed:
  1. The config file, if present, is valid YAML
  2. Every setting satisfies the schema, after environment overrides
  3. The Docker Hub user, GitHub token and notification address are set`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withExitCode(runConfigVet(c, g))
		},
	}
}

func runConfigVet(c *cobra.Command, g *GlobalConfig) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(g.ConfigPath)
	if err != nil {
		return oerrors.NewValidationError(err.Error(), loader.ConfigFileUsed(), "")
	}

	source := loader.ConfigFileUsed()
	output.Debug("validating config", "path", source)

	validator, err := config.NewValidator()
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}
	if err := validator.Validate(cfg, source); err != nil {
		return err
	}
	if err := config.RequireCredentials(cfg); err != nil {
		return err
	}

	if _, statErr := os.Stat(source); statErr != nil {
		source = "defaults and environment"
	}
	fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("Configuration is valid: "+source))
	return nil
}
