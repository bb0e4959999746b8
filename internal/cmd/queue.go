package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
)

// NewQueueCmd creates the queue command group.
func NewQueueCmd(g *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the build queues",
		Long: `Inspect and edit the build queues.

There is one queue per image kind (meteor, alpine), stored one entry per line
in <queue.dir>/<kind>.queue. Adding work to an empty queue spools a build.`,
		Annotations: workspaceAnnotations(false),
	}

	c.AddCommand(newQueueListCmd(g))
	c.AddCommand(newQueueAddCmd(g))
	c.AddCommand(newQueueSetCmd(g))

	return c
}

func newQueueListCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list [kind]",
		Short: "List queued entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			kinds := queue.Kinds()
			if len(args) == 1 {
				kind, err := queue.ParseKind(args[0])
				if err != nil {
					return withExitCode(err)
				}
				kinds = []queue.Kind{kind}
			}

			tbl := output.NewTable("KIND", "#", "ENTRY")
			for _, kind := range kinds {
				entries, err := g.Queue.List(kind)
				if err != nil {
					return withExitCode(err)
				}
				for i, entry := range entries {
					tbl.Row(string(kind), strconv.Itoa(i+1), entry)
				}
			}

			w := c.OutOrStdout()
			if tbl.Len() == 0 {
				fmt.Fprintln(w, "No queued entries")
				return nil
			}
			fmt.Fprintln(w, tbl.String())
			return nil
		},
	}
}

func newQueueAddCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "add <kind> <entry>...",
		Short: "Append entries to a queue",
		Long: `Append entries to the end of a queue. Entries already queued are skipped.
Adding to an empty queue spools a build of that kind.`,
		Example: `  meteorcrawler queue add meteor 1.4.2 1.4.2.1
  meteorcrawler queue add alpine 4.6.1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			kind, err := queue.ParseKind(args[0])
			if err != nil {
				return withExitCode(err)
			}
			w := c.OutOrStdout()
			for _, entry := range args[1:] {
				added, err := g.Queue.Enqueue(c.Context(), kind, entry)
				if err != nil {
					return withExitCode(err)
				}
				status := output.StatusPending
				if !added {
					status = "already queued"
				}
				fmt.Fprintln(w, output.FormatOutcome(entry, status))
			}
			return nil
		},
	}
}

func newQueueSetCmd(g *GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "set <kind> [entry]...",
		Short: "Replace the contents of a queue",
		Long: `Replace the whole queue with the given entries, in order. Without entries
the queue is cleared.`,
		Example: `  # Clear the alpine queue
  meteorcrawler queue set alpine`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			kind, err := queue.ParseKind(args[0])
			if err != nil {
				return withExitCode(err)
			}
			entries := args[1:]
			if err := g.Queue.Set(c.Context(), kind, entries); err != nil {
				return withExitCode(err)
			}
			fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark(fmt.Sprintf("%s queue set to %d entr%s", kind, len(entries), plural(len(entries), "y", "ies"))))
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
