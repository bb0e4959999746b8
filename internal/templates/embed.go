// Package templates provides the embedded Dockerfile templates and renders
// them into build directories.
package templates

import (
	"embed"
	"fmt"
)

//go:embed dockerfiles/*.tmpl
var dockerfileFS embed.FS

// Name identifies a Dockerfile template.
type Name string

const (
	// Meteor installs a Meteor release on a Debian base.
	Meteor Name = "meteor"

	// Alpine adds a native build toolchain to an Alpine Node.js image.
	Alpine Name = "alpine"

	// SmokeTest builds an application image on top of a minimeteor variant.
	SmokeTest Name = "smoketest"
)

// NodeLabel prefixes the line of build output that carries the Node.js
// version bundled with a Meteor release.
const NodeLabel = "METEORCRAWLER_NODE_VERSION="

// Data contains the values substituted into a template.
type Data struct {
	// Release is the upstream version being built.
	Release string

	// BaseImage is the FROM image, without tag for the alpine template.
	BaseImage string

	// NodeLabel is the marker printed before the Node.js version.
	NodeLabel string

	// CacheBust is written into a comment so docker never reuses a stale layer.
	CacheBust string
}

// ValidNames returns all template names.
func ValidNames() []string {
	return []string{string(Meteor), string(Alpine), string(SmokeTest)}
}

func load(name Name) ([]byte, error) {
	data, err := dockerfileFS.ReadFile("dockerfiles/" + string(name) + ".Dockerfile.tmpl")
	if err != nil {
		return nil, fmt.Errorf("template %q not found: %w", name, err)
	}
	return data, nil
}
