package cmd

import (
	"github.com/spf13/cobra"

	"github.com/meteorcrawler/meteorcrawler/internal/build"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
)

// NewRunCmd creates the run command.
func NewRunCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build the next Meteor release, then run one smoke test cycle",
		Long: `Run one full cycle: build the oldest released Meteor version that has no
image yet, then refetch the published tags and run one smoke test cycle.

Intended to be started periodically, e.g. from cron.`,
		Args:        cobra.NoArgs,
		Annotations: workspaceAnnotations(true),
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			w := c.OutOrStdout()
			if err := runBuild(ctx, g, w, queue.KindMeteor, build.Request{Source: build.SourceUpstream}); err != nil {
				return withExitCode(err)
			}
			return withExitCode(runTest(ctx, g, w))
		},
	}
}
