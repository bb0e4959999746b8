// Package cmd provides CLI command implementations.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meteorcrawler/meteorcrawler/internal/config"
	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/runner"
	"github.com/meteorcrawler/meteorcrawler/internal/spool"
)

// Command annotations. They are looked up on the command and its parents.
const (
	// annotationWorkspace marks commands that need a valid config and an
	// open queue directory.
	annotationWorkspace = "meteorcrawler/workspace"

	// annotationCredentials marks commands that talk to Docker Hub, GitHub
	// or the mail transport.
	annotationCredentials = "meteorcrawler/credentials"
)

// GlobalConfig holds CLI-wide state resolved during PersistentPreRunE. It is
// passed explicitly into every command constructor.
type GlobalConfig struct {
	// ConfigPath is the raw --config flag value.
	ConfigPath string
	Verbose    bool
	Timestamps bool

	// Config is the loaded configuration; defaults when loading failed for
	// a command that does not need a workspace.
	Config *config.Config

	// ConfigFile is the file the configuration was read from.
	ConfigFile string

	// Runner runs every external program. Tests inject a fake.
	Runner runner.Runner

	// Queue and Spool are only set for workspace commands.
	Queue *queue.Queue
	Spool *spool.Spool
}

// NewRootCmd creates the root command for the meteorcrawler CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&GlobalConfig{})
}

func newRootCmd(g *GlobalConfig) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meteorcrawler",
		Short: "Build and smoke test Meteor Docker images",
		Long: `meteorcrawler tracks Meteor releases on GitHub, builds a Docker image for
every release that has none yet, chains the matching Alpine Node.js builder
image, and smoke tests published images against minimeteor variants.

Runs are expected to be serialized by a task spooler (tsp); commands that
discover follow-up work spool the next run themselves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return withExitCode(initializeGlobals(cmd, g))
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "Path to config file (env: METEORCRAWLER_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&g.Timestamps, "timestamps", true, "Show timestamps in log output")

	rootCmd.AddCommand(NewCrawlCmd(g))
	rootCmd.AddCommand(NewBuildCmd(g))
	rootCmd.AddCommand(NewTestCmd(g))
	rootCmd.AddCommand(NewRunCmd(g))
	rootCmd.AddCommand(NewQueueCmd(g))
	rootCmd.AddCommand(NewStatusCmd(g))
	rootCmd.AddCommand(NewConfigCmd(g))
	rootCmd.AddCommand(NewVersionCmd(g))

	return rootCmd
}

// initializeGlobals loads configuration, sets up logging and, for workspace
// commands, validates the configuration and opens the queue directory.
func initializeGlobals(cmd *cobra.Command, g *GlobalConfig) error {
	workspace := hasAnnotation(cmd, annotationWorkspace)

	loader := config.NewLoader()
	cfg, loadErr := loader.Load(g.ConfigPath)
	if loadErr != nil {
		if workspace {
			return oerrors.NewValidationError(loadErr.Error(), loader.ConfigFileUsed(),
				"Fix the file or run 'meteorcrawler config init --force' to rewrite it.")
		}
		cfg = config.DefaultConfig()
	}
	g.Config = cfg
	g.ConfigFile = loader.ConfigFileUsed()

	logCfg := output.LogConfig{
		Verbose: g.Verbose,
		Level:   cfg.Log.Level,
	}
	if cmd.Flags().Changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(g.Timestamps)
	} else if cfg.Log.Timestamps != nil {
		logCfg.Timestamps = cfg.Log.Timestamps
	}
	output.SetupLogging(logCfg)

	if loadErr != nil {
		output.Debug("config load error", "error", loadErr)
	}
	output.Debug("initializing CLI", "config", g.ConfigFile, "queueDir", cfg.Queue.Dir)

	if g.Runner == nil {
		g.Runner = runner.New(output.ScopedLogger("exec"))
	}

	if !workspace {
		return nil
	}

	validator, err := config.NewValidator()
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}
	if err := validator.Validate(cfg, g.ConfigFile); err != nil {
		return err
	}
	if hasAnnotation(cmd, annotationCredentials) {
		if err := config.RequireCredentials(cfg); err != nil {
			return err
		}
	}

	g.Spool = spool.New(g.Runner, cfg.Spool.Command, selfExecutable(), g.spoolArgs(), output.ScopedLogger("spool"))
	q, err := queue.Open(cfg.Queue.Dir, g.Spool, output.ScopedLogger("queue"))
	if err != nil {
		return err
	}
	g.Queue = q
	return nil
}

// spoolArgs are passed to every spooled job so it sees the same configuration.
func (g *GlobalConfig) spoolArgs() []string {
	if g.ConfigPath == "" {
		return nil
	}
	path, err := config.ExpandPath(g.ConfigPath)
	if err != nil {
		path = g.ConfigPath
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return []string{"--config", path}
}

func selfExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return "meteorcrawler"
	}
	return exe
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}

func workspaceAnnotations(credentials bool) map[string]string {
	a := map[string]string{annotationWorkspace: "true"}
	if credentials {
		a[annotationCredentials] = "true"
	}
	return a
}
