package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command.
func NewTestCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run one smoke test cycle",
		Long: `Pick the next untested combination of a published Meteor image and a
minimeteor variant, build a test app on top of it, run it next to a linked
mongo container and check that it serves a Meteor page.

When every variant combination has been tested, the minimeteor build script
is tried from each configured branch whose head changed since its last test.
A passing image is pushed to the test repository and the next cycle is
spooled.`,
		Args:        cobra.NoArgs,
		Annotations: workspaceAnnotations(true),
		RunE: func(c *cobra.Command, _ []string) error {
			return withExitCode(runTest(c.Context(), g, c.OutOrStdout()))
		},
	}
}

func runTest(ctx context.Context, g *GlobalConfig, w io.Writer) error {
	cl := g.clients()
	defer cl.Close()

	t, closeProber, err := g.tester(cl, w)
	if err != nil {
		return err
	}
	defer closeProber()

	res, err := t.Run(ctx)
	if err != nil {
		return err
	}
	printTestResult(w, res)
	return nil
}
