// Package spool schedules follow-up runs of this program through an external
// single-slot task spooler (tsp). The spooler serializes invocations, which
// is what keeps the unlocked queue files safe.
package spool

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/runner"
)

// Spool submits jobs to the task spooler.
type Spool struct {
	run runner.Runner
	log *log.Logger

	// Program is the spooler executable, "tsp" by default.
	Program string

	// Self is the executable re-invoked for each job.
	Self string

	// BaseArgs are prepended to every job, e.g. the --config flag in effect.
	BaseArgs []string
}

// New creates a spool that re-invokes self.
func New(r runner.Runner, program, self string, baseArgs []string, logger *log.Logger) *Spool {
	if program == "" {
		program = "tsp"
	}
	return &Spool{run: r, log: logger, Program: program, Self: self, BaseArgs: baseArgs}
}

// Submit spools "<self> <base args> <args>".
func (s *Spool) Submit(ctx context.Context, args ...string) error {
	job := append(append([]string{s.Self}, s.BaseArgs...), args...)
	if runtime.GOOS == "windows" {
		s.log.Warn("task spooling is not available on windows", "job", strings.Join(job, " "))
		return nil
	}

	s.log.Info("spooling", "job", strings.Join(job, " "))
	res, err := s.run.Run(ctx, runner.Command{
		Name: s.Program,
		Args: append([]string{"-n"}, job...),
	})
	if err != nil {
		return fmt.Errorf("spooling job: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("spooling job: %s exited with code %d: %s", s.Program, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// JobArgs returns the command line that consumes a queue kind.
func JobArgs(kind queue.Kind) []string {
	switch kind {
	case queue.KindMeteor:
		return []string{"build", "meteor", "--from-queue"}
	default:
		return []string{"build", string(kind)}
	}
}

// Wake implements queue.Waker by spooling the consumer of kind.
func (s *Spool) Wake(ctx context.Context, kind queue.Kind) error {
	return s.Submit(ctx, JobArgs(kind)...)
}

// ScheduleTest spools the next smoke test cycle.
func (s *Spool) ScheduleTest(ctx context.Context) error {
	return s.Submit(ctx, "test")
}

// ScheduleBuild spools another build of kind from its queue.
func (s *Spool) ScheduleBuild(ctx context.Context, kind queue.Kind) error {
	return s.Submit(ctx, JobArgs(kind)...)
}
