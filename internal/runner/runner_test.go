package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExec() *Exec {
	return New(log.New(io.Discard))
}

func TestExec_CapturesOutput(t *testing.T) {
	var tee bytes.Buffer
	res, err := newTestExec().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
		Tee:  &tee,
	})

	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, "out\n", tee.String(), "stdout is teed while captured")
}

func TestExec_NonzeroExitIsNotAnError(t *testing.T) {
	res, err := newTestExec().Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})

	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.ExitCode)
}

func TestExec_ArgumentsAreNotShellInterpreted(t *testing.T) {
	res, err := newTestExec().Run(context.Background(), Command{Name: "echo", Args: []string{"$HOME; rm -rf /"}})

	require.NoError(t, err)
	assert.Equal(t, "$HOME; rm -rf /\n", res.Stdout)
}

func TestExec_DirAndStdin(t *testing.T) {
	dir := t.TempDir()
	res, err := newTestExec().Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", "pwd; cat"},
		Dir:   dir,
		Stdin: strings.NewReader("piped"),
	})

	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
	assert.Contains(t, res.Stdout, "piped")
}

func TestExec_MissingProgram(t *testing.T) {
	_, err := newTestExec().Run(context.Background(), Command{Name: "definitely-not-a-real-program-xyz"})
	assert.Error(t, err)
}

func TestExec_LookPath(t *testing.T) {
	found, err := newTestExec().LookPath("sh", "definitely-not-a-real-program-xyz")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-program-xyz")
	assert.Contains(t, found, "sh")
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "docker build -t x /tmp", Command{Name: "docker", Args: []string{"build", "-t", "x", "/tmp"}}.String())
	assert.Equal(t, "id", Command{Name: "id"}.String())
}

func TestExec_Env(t *testing.T) {
	res, err := newTestExec().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $METEORCRAWLER_TEST_VAR"},
		Env:  []string{"METEORCRAWLER_TEST_VAR=set"},
	})

	require.NoError(t, err)
	assert.Equal(t, "set\n", res.Stdout)
}
