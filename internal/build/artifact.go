package build

import (
	"bufio"
	"strings"

	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/templates"
)

// DefaultMeteorBase is the Debian image Meteor releases are installed on.
const DefaultMeteorBase = "debian:bookworm-slim"

// DefaultAlpineBase is the Alpine Node.js image builder images derive from.
const DefaultAlpineBase = "mhart/alpine-node"

// Extractor pulls a derived identifier out of build output.
type Extractor func(buildOutput string) (string, bool)

// Artifact describes one kind of image the orchestrator can build.
type Artifact struct {
	// Kind is the queue this artifact is consumed from.
	Kind queue.Kind

	// Repo is the registry repository images are pushed to.
	Repo string

	// Template renders the Dockerfile.
	Template templates.Name

	// BaseImage is passed to the template as the FROM image.
	BaseImage string

	// Extract finds a derived identifier in the build output. Optional.
	Extract Extractor

	// Chain is the queue the derived identifier is enqueued into. Empty
	// disables chaining.
	Chain queue.Kind

	// RetryFailed keeps a queued tag at the tail of its queue until it is
	// published, so a failed build is attempted again on a later run.
	RetryFailed bool
}

// MeteorArtifact builds a Meteor release on Debian and chains the bundled
// Node.js version into the alpine queue.
func MeteorArtifact(repo string) Artifact {
	return Artifact{
		Kind:      queue.KindMeteor,
		Repo:      repo,
		Template:  templates.Meteor,
		BaseImage: DefaultMeteorBase,
		Extract:   NodeVersion,
		Chain:     queue.KindAlpine,
	}
}

// AlpineArtifact builds an Alpine Node.js image with a native toolchain.
// Its queue is only fed by chaining, so failed tags are retried rather than
// lost.
func AlpineArtifact(repo string) Artifact {
	return Artifact{
		Kind:        queue.KindAlpine,
		Repo:        repo,
		Template:    templates.Alpine,
		BaseImage:   DefaultAlpineBase,
		RetryFailed: true,
	}
}

// NodeVersion finds the line printed by the Meteor Dockerfile that carries the
// bundled Node.js version. Docker echoes the RUN instruction itself, so lines
// containing "echo <label>" are skipped. A leading "v" is stripped.
func NodeVersion(buildOutput string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(buildOutput))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.Index(line, templates.NodeLabel)
		if i < 0 || strings.Contains(line, "echo "+templates.NodeLabel) {
			continue
		}
		v := strings.TrimSpace(line[i+len(templates.NodeLabel):])
		v = strings.TrimPrefix(v, "v")
		if v == "" {
			continue
		}
		return v, true
	}
	return "", false
}
