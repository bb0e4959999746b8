package cmd

import (
	"fmt"
	"io"

	"github.com/meteorcrawler/meteorcrawler/internal/build"
	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/smoketest"
)

func buildStatus(s build.State) string {
	switch s {
	case build.StatePublished:
		return output.StatusPublished
	case build.StatePushFailed:
		return output.StatusPushFailed
	case build.StateFailed:
		return output.StatusFailed
	default:
		return output.StatusIdle
	}
}

func testStatus(s smoketest.State) string {
	switch s {
	case smoketest.StatePassed:
		return output.StatusPassed
	case smoketest.StateFailed:
		return output.StatusFailed
	default:
		return output.StatusIdle
	}
}

// printBuildResult writes one outcome line for a build run, followed by the
// reason or the chained identifier when there is one.
func printBuildResult(w io.Writer, kind string, res build.Result) {
	noun := res.Image
	if noun == "" {
		noun = kind
	}
	fmt.Fprintln(w, output.FormatOutcome(noun, buildStatus(res.State)))
	if res.Reason != "" {
		fmt.Fprintf(w, "  %s\n", res.Reason)
	}
	if res.Derived != "" {
		fmt.Fprintf(w, "  queued %s\n", output.StyleNoun.Render(res.Derived))
	}
}

func printTestResult(w io.Writer, res smoketest.Result) {
	noun := res.Item.CompositeKey
	if noun == "" {
		noun = "smoke test"
	}
	fmt.Fprintln(w, output.FormatOutcome(noun, testStatus(res.State)))
	if res.State == smoketest.StatePassed && !res.Pushed {
		fmt.Fprintf(w, "  %s was not pushed\n", res.Image)
	}
	if res.Reason != "" {
		fmt.Fprintf(w, "  %s\n", res.Reason)
	}
}
