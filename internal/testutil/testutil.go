// Package testutil provides test helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/meteorcrawler/meteorcrawler/internal/runner"
)

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dirs for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile returns the content of path, or "" if it does not exist.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// Handler decides the outcome of a faked command.
type Handler func(cmd runner.Command) (runner.Result, error)

// FakeRunner records every command and answers it through handlers matched
// on the command line prefix. Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu       sync.Mutex
	calls    []runner.Command
	handlers []prefixHandler
}

type prefixHandler struct {
	prefix string
	fn     Handler
}

// On registers fn for commands whose rendered form starts with prefix.
// Later registrations take precedence.
func (f *FakeRunner) On(prefix string, fn Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, prefixHandler{prefix: prefix, fn: fn})
	return f
}

// Reply registers a fixed stdout and exit code for prefix.
func (f *FakeRunner) Reply(prefix, stdout string, exitCode int) *FakeRunner {
	return f.On(prefix, func(runner.Command) (runner.Result, error) {
		return runner.Result{Stdout: stdout, ExitCode: exitCode}, nil
	})
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var fn Handler
	line := cmd.String()
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.handlers[i].prefix) {
			fn = f.handlers[i].fn
			break
		}
	}
	f.mu.Unlock()

	if fn == nil {
		return runner.Result{}, nil
	}
	res, err := fn(cmd)
	if err == nil && cmd.Tee != nil && res.Stdout != "" {
		_, _ = cmd.Tee.Write([]byte(res.Stdout))
	}
	return res, err
}

// Calls returns the rendered command lines in invocation order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the recorded commands in invocation order.
func (f *FakeRunner) Commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// Called reports whether any command starting with prefix was run.
func (f *FakeRunner) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
