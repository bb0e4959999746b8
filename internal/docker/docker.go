// Package docker drives the docker CLI through a runner.Runner.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/meteorcrawler/meteorcrawler/internal/runner"
)

// CLI issues docker commands. Methods that map to a single command return the
// runner.Result so callers decide how to treat a nonzero exit.
type CLI struct {
	run runner.Runner

	// Binary is the docker executable, "docker" by default.
	Binary string

	// Timeout bounds long-running commands (build, run) by wrapping them in
	// timeout(1); an expired timeout shows up as a nonzero exit. Zero disables it.
	TimeoutSeconds int
}

// New creates a docker CLI wrapper.
func New(r runner.Runner, timeoutSeconds int) *CLI {
	return &CLI{run: r, Binary: "docker", TimeoutSeconds: timeoutSeconds}
}

// ImageRef joins owner, repository and tag into "owner/repo:tag".
func ImageRef(owner, repo, tag string) string {
	ref := owner + "/" + repo
	if tag != "" {
		ref += ":" + tag
	}
	return ref
}

func (c *CLI) command(bounded bool, args ...string) runner.Command {
	if bounded && c.TimeoutSeconds > 0 {
		return runner.Command{
			Name: "timeout",
			Args: append([]string{strconv.Itoa(c.TimeoutSeconds), c.Binary}, args...),
		}
	}
	return runner.Command{Name: c.Binary, Args: args}
}

// Build runs "docker build -t image dir", streaming stdout to tee when set.
func (c *CLI) Build(ctx context.Context, image, dir string, tee io.Writer) (runner.Result, error) {
	cmd := c.command(true, "build", "-t", image, dir)
	cmd.Env = []string{"DOCKER_BUILDKIT=0"}
	cmd.Tee = tee
	return c.run.Run(ctx, cmd)
}

// Push runs "docker push image".
func (c *CLI) Push(ctx context.Context, image string) (runner.Result, error) {
	return c.run.Run(ctx, c.command(false, "push", image))
}

// RunOptions describes a "docker run" invocation.
type RunOptions struct {
	Name    string
	Image   string
	Detach  bool
	Remove  bool
	Links   []string
	Env     []string
	Volumes []string
	Command []string
}

// Run runs a container. Detached containers return their ID on stdout.
func (c *CLI) Run(ctx context.Context, opts RunOptions) (runner.Result, error) {
	args := []string{"run"}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	for _, l := range opts.Links {
		args = append(args, "--link", l)
	}
	for _, e := range opts.Env {
		args = append(args, "-e", e)
	}
	for _, v := range opts.Volumes {
		args = append(args, "-v", v)
	}
	args = append(args, opts.Image)
	args = append(args, opts.Command...)
	return c.run.Run(ctx, c.command(!opts.Detach, args...))
}

// BridgeIP returns the bridge network address of a running container.
func (c *CLI) BridgeIP(ctx context.Context, name string) (string, error) {
	res, err := c.run.Run(ctx, c.command(false, "inspect", "--format", "{{ .NetworkSettings.Networks.bridge.IPAddress }}", name))
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("docker inspect %s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	ip := strings.TrimSpace(res.Stdout)
	if ip == "" {
		return "", fmt.Errorf("docker inspect %s: no bridge address", name)
	}
	return ip, nil
}

// Logs returns the combined output of a container.
func (c *CLI) Logs(ctx context.Context, name string) (string, error) {
	res, err := c.run.Run(ctx, c.command(false, "logs", name))
	if err != nil {
		return "", err
	}
	return res.Stdout + res.Stderr, nil
}

// Stop stops a container by name.
func (c *CLI) Stop(ctx context.Context, name string) error {
	return c.expectOK(ctx, "stop", name)
}

// Remove removes a container by name.
func (c *CLI) Remove(ctx context.Context, name string) error {
	return c.expectOK(ctx, "rm", name)
}

// Prune removes all unused containers, networks and images.
func (c *CLI) Prune(ctx context.Context) error {
	return c.expectOK(ctx, "system", "prune", "-af")
}

func (c *CLI) expectOK(ctx context.Context, args ...string) error {
	res, err := c.run.Run(ctx, c.command(false, args...))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("docker %s: exit %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
