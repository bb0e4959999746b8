package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd(g *GlobalConfig) *cobra.Command {
	var dryRun bool

	c := &cobra.Command{
		Use:   "crawl",
		Short: "Queue every Meteor release that has no image yet",
		Long: `Compare the Meteor release tags on GitHub against the tags published on
Docker Hub and append every eligible release without an image to the meteor
queue. Queueing wakes the build consumer through the task spooler.`,
		Args:        cobra.NoArgs,
		Annotations: workspaceAnnotations(true),
		RunE: func(c *cobra.Command, _ []string) error {
			return withExitCode(runCrawl(c.Context(), g, c.OutOrStdout(), dryRun))
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "List missing releases without queueing them")

	return c
}

func runCrawl(ctx context.Context, g *GlobalConfig, w io.Writer, dryRun bool) error {
	cfg := g.Config
	floor, err := cfg.BuildFloor()
	if err != nil {
		return err
	}

	cl := g.clients()
	defer cl.Close()

	releases, err := cl.github.ReleaseVersions(ctx, cfg.GitHub.Owner, cfg.GitHub.Repo)
	if err != nil {
		return err
	}
	published, err := cl.hub.TagNames(ctx, cfg.Docker.MeteorRepo)
	if err != nil {
		return err
	}

	missing := resolve.EligibleBuilds(releases, sets.New(published...), floor)
	output.Debug("crawled releases", "upstream", len(releases), "published", len(published), "missing", len(missing))

	if dryRun {
		for _, tag := range missing {
			fmt.Fprintln(w, output.FormatOutcome(tag, output.StatusPending))
		}
		return nil
	}

	added := 0
	for _, tag := range missing {
		ok, err := g.Queue.Enqueue(ctx, queue.KindMeteor, tag)
		if err != nil {
			return err
		}
		if ok {
			added++
			output.Info("queued release", "tag", tag)
			fmt.Fprintln(w, output.FormatOutcome(tag, output.StatusPending))
		}
	}

	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("%d missing release(s), %d newly queued", len(missing), added)))
	return nil
}
