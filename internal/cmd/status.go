package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
)

// StatusReport is the machine-readable form of the status command.
type StatusReport struct {
	ConfigFile string        `json:"configFile,omitempty"`
	QueueDir   string        `json:"queueDir"`
	Owner      string        `json:"owner"`
	Queues     []QueueStatus `json:"queues"`
}

// QueueStatus describes one queue.
type QueueStatus struct {
	Kind    queue.Kind `json:"kind"`
	Length  int        `json:"length"`
	Pending []string   `json:"pending"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd(g *GlobalConfig) *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:         "status",
		Short:       "Show queue lengths and pending entries",
		Args:        cobra.NoArgs,
		Annotations: workspaceAnnotations(false),
		RunE: func(c *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return withExitCode(err)
			}
			report, err := collectStatus(g)
			if err != nil {
				return withExitCode(err)
			}
			return withExitCode(writeStatus(c.OutOrStdout(), f, report))
		},
	}

	c.Flags().StringVarP(&format, "output", "o", "table", fmt.Sprintf("Output format (%s)", strings.Join(output.ValidFormats(), ", ")))

	return c
}

func collectStatus(g *GlobalConfig) (*StatusReport, error) {
	report := &StatusReport{
		ConfigFile: g.ConfigFile,
		QueueDir:   g.Queue.Dir(),
		Owner:      g.Config.Docker.User,
	}
	for _, kind := range queue.Kinds() {
		entries, err := g.Queue.List(kind)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []string{}
		}
		report.Queues = append(report.Queues, QueueStatus{Kind: kind, Length: len(entries), Pending: entries})
	}
	return report, nil
}

func writeStatus(w io.Writer, f output.Format, report *StatusReport) error {
	if f != output.FormatTable {
		data, err := output.Marshal(f, report)
		if err != nil {
			return err
		}
		fmt.Fprint(w, data)
		return nil
	}

	tbl := output.NewTable("QUEUE", "LENGTH", "NEXT")
	for _, q := range report.Queues {
		next := "-"
		if len(q.Pending) > 0 {
			next = q.Pending[0]
		}
		tbl.Row(string(q.Kind), strconv.Itoa(q.Length), next)
	}
	fmt.Fprintf(w, "Queue directory: %s\n", report.QueueDir)
	fmt.Fprintln(w, tbl.String())
	return nil
}
