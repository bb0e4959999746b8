package templates

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllTemplatesRender(t *testing.T) {
	for _, name := range ValidNames() {
		t.Run(name, func(t *testing.T) {
			out, err := Render(Name(name), Data{Release: "1.5", BaseImage: "base", NodeLabel: NodeLabel, CacheBust: "1"})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(strings.TrimPrefix(out, "# Dockerfile\n"), "FROM "), out)
		})
	}
}

func TestRenderMeteor(t *testing.T) {
	out, err := Render(Meteor, Data{
		Release:   "1.4.2.1",
		BaseImage: "debian:jessie-slim",
		NodeLabel: NodeLabel,
		CacheBust: "1700000000",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "FROM debian:jessie-slim")
	assert.Contains(t, out, `https://install.meteor.com/?release=1.4.2.1`)
	assert.Contains(t, out, "echo METEORCRAWLER_NODE_VERSION=`meteor node --version`")
	assert.Contains(t, out, "# 1700000000")
}

func TestRenderAlpine(t *testing.T) {
	out, err := Render(Alpine, Data{Release: "4.6.2", BaseImage: "mhart/alpine-node"})

	require.NoError(t, err)
	assert.Contains(t, out, "FROM mhart/alpine-node:4.6.2")
	assert.Contains(t, out, "apk add --no-cache")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render(Name("windows"), Data{})
	assert.Error(t, err)
}

func TestWriteDockerfile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteDockerfile(dir, SmokeTest, Data{BaseImage: "aedm/minimeteor:development"})

	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FROM aedm/minimeteor:development\n", string(content))
}
