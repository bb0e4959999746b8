package cmd

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubTag struct {
	Name string `json:"name"`
}

func upstreamServer(t *testing.T, releases []string, published []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/meteor/meteor/tags":
			var page []hubTag
			if r.URL.Query().Get("page") == "1" {
				for i := len(releases) - 1; i >= 0; i-- {
					page = append(page, hubTag{Name: "release/METEOR@" + releases[i]})
				}
			}
			writeJSON(t, w, page)
		case strings.HasPrefix(r.URL.Path, "/v2/repositories/crawler/meteor/tags"):
			var results []hubTag
			for _, p := range published {
				results = append(results, hubTag{Name: p})
			}
			writeJSON(t, w, map[string]any{"count": len(results), "next": "", "results": results})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestCrawl_QueuesMissingReleases(t *testing.T) {
	h := newHarness(t)
	h.serve(t, upstreamServer(t, []string{"1.2", "1.3", "1.4-rc.1", "1.4", "1.4.1"}, []string{"1.3"}))

	out, err := h.run(t, "crawl")

	require.NoError(t, err)
	assert.Equal(t, "1.4\n1.4.1\n", h.queueFile(t, "meteor"))
	assert.Contains(t, out, "2 missing release(s), 2 newly queued")
	assert.True(t, h.runner.Called("tsp -n"))

	out, err = h.run(t, "crawl")
	require.NoError(t, err)
	assert.Contains(t, out, "2 missing release(s), 0 newly queued")
}

func TestCrawl_DryRunLeavesQueueAlone(t *testing.T) {
	h := newHarness(t)
	h.serve(t, upstreamServer(t, []string{"1.4"}, nil))

	out, err := h.run(t, "crawl", "--dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "1.4")
	assert.Empty(t, h.queueFile(t, "meteor"))
	assert.Empty(t, h.runner.Calls())
}

func TestCrawl_UnreachableUpstreamIsConnectivityError(t *testing.T) {
	h := newHarness(t)
	h.serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := h.run(t, "crawl")

	require.Error(t, err)
	assert.Equal(t, ExitConnectivityError, ExitCodeFromError(err))
	assert.Empty(t, h.queueFile(t, "meteor"))
}
