package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meteorcrawler/meteorcrawler/internal/testutil"
)

// harness runs the root command against a temporary home, queue directory
// and fake runner.
type harness struct {
	dir      string
	queueDir string
	runner   *testutil.FakeRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:      dir,
		queueDir: filepath.Join(dir, "queues"),
		runner:   &testutil.FakeRunner{},
	}

	t.Setenv("HOME", dir)
	t.Setenv("METEORCRAWLER_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("METEORCRAWLER_QUEUE_DIR", h.queueDir)
	t.Setenv("METEORCRAWLER_DIR", "")
	h.setCredentials(t, "crawler", "token", "ops@example.com")

	return h
}

func (h *harness) setCredentials(t *testing.T, user, token, email string) {
	t.Helper()
	t.Setenv("METEORCRAWLER_DOCKER_USER", user)
	t.Setenv("DOCKER_HUB_USER", user)
	t.Setenv("METEORCRAWLER_GITHUB_TOKEN", token)
	t.Setenv("METEORCRAWLER_GITHUB_OAUTH_TOKEN", token)
	t.Setenv("METEORCRAWLER_NOTIFY_EMAIL", email)
	t.Setenv("EMAIL_ADDRESS", email)
}

// serve points Docker Hub and GitHub at one test server.
func (h *harness) serve(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("METEORCRAWLER_DOCKER_HUBURL", srv.URL)
	t.Setenv("METEORCRAWLER_GITHUB_APIURL", srv.URL)
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&GlobalConfig{Runner: h.runner})
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (h *harness) queueFile(t *testing.T, kind string) string {
	t.Helper()
	return testutil.ReadFile(t, filepath.Join(h.queueDir, kind+".queue"))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}
