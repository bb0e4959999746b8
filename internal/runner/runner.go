// Package runner executes external programs as structured commands: a program
// name plus an argument list, never a shell string.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	utilexec "k8s.io/utils/exec"
)

// Command describes one invocation of an external program.
type Command struct {
	// Name is the program to run, resolved through PATH.
	Name string

	// Args are passed verbatim, without shell interpretation.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env adds variables to the inherited environment.
	Env []string

	// Stdin is fed to the program when set.
	Stdin io.Reader

	// Tee receives a copy of stdout as it is produced, e.g. to stream build logs.
	Tee io.Writer
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner runs commands. A nonzero exit is reported in Result, not as an error;
// the error return is reserved for commands that could not be started.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec runs commands on the host.
type Exec struct {
	exec utilexec.Interface
	log  *log.Logger
}

// New creates a host runner logging each invocation to logger.
func New(logger *log.Logger) *Exec {
	return &Exec{exec: utilexec.New(), log: logger}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	e.log.Debug("executing", "command", c.String())

	cmd := e.exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Dir != "" {
		cmd.SetDir(c.Dir)
	}
	if len(c.Env) > 0 {
		cmd.SetEnv(append(os.Environ(), c.Env...))
	}
	if c.Stdin != nil {
		cmd.SetStdin(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	if c.Tee != nil {
		cmd.SetStdout(io.MultiWriter(&stdout, c.Tee))
	} else {
		cmd.SetStdout(&stdout)
	}
	cmd.SetStderr(&stderr)

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr utilexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		res.ExitCode = exitErr.ExitStatus()
		e.log.Debug("command failed", "command", c.Name, "exit", res.ExitCode)
		return res, nil
	}
	return res, fmt.Errorf("running %s: %w", c.Name, err)
}

// LookPath reports the resolved path of each program, or an error for the
// ones missing from PATH.
func (e *Exec) LookPath(names ...string) (map[string]string, error) {
	found := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		path, err := e.exec.LookPath(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		found[name] = path
	}
	if len(missing) > 0 {
		return found, fmt.Errorf("programs not found in PATH: %s", strings.Join(missing, ", "))
	}
	return found, nil
}
