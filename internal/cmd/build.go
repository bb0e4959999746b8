package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/meteorcrawler/meteorcrawler/internal/build"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
)

// NewBuildCmd creates the build command group.
func NewBuildCmd(g *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:         "build",
		Short:       "Build and publish one image",
		Annotations: workspaceAnnotations(true),
	}

	c.AddCommand(newBuildMeteorCmd(g))
	c.AddCommand(newBuildAlpineCmd(g))

	return c
}

func newBuildMeteorCmd(g *GlobalConfig) *cobra.Command {
	var fromQueue bool

	c := &cobra.Command{
		Use:   "meteor [version]",
		Short: "Build a Meteor image",
		Long: `Build and publish one Meteor image.

Without arguments the oldest released version that has no image yet is built.
With --from-queue the head of the meteor queue is built instead, and with a
version argument exactly that version is built.

A successful build queues the Node.js version it reports for the Alpine
builder image.`,
		Example: `  # Build the next unbuilt release
  meteorcrawler build meteor

  # Drain the meteor queue one entry per run
  meteorcrawler build meteor --from-queue

  # Rebuild a specific release
  meteorcrawler build meteor 1.4.2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			req := build.Request{Source: build.SourceUpstream}
			switch {
			case len(args) == 1 && fromQueue:
				return withExitCode(fmt.Errorf("--from-queue cannot be combined with an explicit version"))
			case len(args) == 1:
				req = build.Request{Source: build.SourceExplicit, Tag: args[0]}
			case fromQueue:
				req = build.Request{Source: build.SourceQueue}
			}
			return withExitCode(runBuild(c.Context(), g, c.OutOrStdout(), queue.KindMeteor, req))
		},
	}

	c.Flags().BoolVar(&fromQueue, "from-queue", false, "Build the head of the meteor queue")

	return c
}

func newBuildAlpineCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "alpine [node-version]",
		Short: "Build an Alpine Node.js builder image",
		Long: `Build and publish one Alpine builder image for a Node.js version.

Without arguments the head of the alpine queue is built; versions are queued
by successful Meteor builds. A version that fails to build or push stays at
the tail of the queue and is attempted again when new work arrives.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			req := build.Request{Source: build.SourceQueue}
			if len(args) == 1 {
				req = build.Request{Source: build.SourceExplicit, Tag: args[0]}
			}
			return withExitCode(runBuild(c.Context(), g, c.OutOrStdout(), queue.KindAlpine, req))
		},
	}
}

func runBuild(ctx context.Context, g *GlobalConfig, w io.Writer, kind queue.Kind, req build.Request) error {
	cl := g.clients()
	defer cl.Close()

	o, err := g.builder(kind, cl, w)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx, req)
	if err != nil {
		return err
	}
	printBuildResult(w, string(o.Artifact().Kind), res)
	return nil
}
