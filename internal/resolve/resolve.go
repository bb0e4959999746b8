// Package resolve picks the next unit of work: the first candidate, in a
// caller-supplied order, that is eligible and not yet satisfied.
package resolve

import (
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/meteorcrawler/meteorcrawler/internal/version"
)

// WorkItem is one resolved unit of work. It is not persisted.
type WorkItem struct {
	// Tag is the release or image tag to act on.
	Tag string

	// CompositeKey identifies a test combination; empty for builds.
	CompositeKey string

	// Variant is the variant name of a docker test combination.
	Variant string

	// Branch is the source branch of a script test combination.
	Branch string
}

// Variant is a secondary image combined with an image tag to form a test unit.
type Variant struct {
	Name        string
	LastUpdated string
}

// Branch is a source branch head combined with an image tag to form a test unit.
type Branch struct {
	Name      string
	CommitSHA string
}

// BuildEligible reports whether an upstream tag may be built at all:
// it must parse, must not be a prerelease and must be at least floor.
func BuildEligible(tag string, floor version.Release) bool {
	r, ok := version.Parse(tag)
	return ok && !r.IsPrerelease && r.IsAtLeast(floor)
}

// NextBuild returns the first tag of upstream, in order, that is eligible and
// not in published.
func NextBuild(upstream []string, published sets.Set[string], floor version.Release) (WorkItem, bool) {
	for _, tag := range upstream {
		if published.Has(tag) || !BuildEligible(tag, floor) {
			continue
		}
		return WorkItem{Tag: tag}, true
	}
	return WorkItem{}, false
}

// EligibleBuilds returns every tag NextBuild could return, in order.
func EligibleBuilds(upstream []string, published sets.Set[string], floor version.Release) []string {
	var out []string
	seen := sets.New[string]()
	for _, tag := range upstream {
		if published.Has(tag) || seen.Has(tag) || !BuildEligible(tag, floor) {
			continue
		}
		seen.Insert(tag)
		out = append(out, tag)
	}
	return out
}

// ImageFilter selects which published images take part in smoke tests.
type ImageFilter struct {
	// Floor is the minimum release tested.
	Floor version.Release

	// MaxComponents limits the number of numeric components; zero means no limit.
	MaxComponents int

	// LatestAlwaysEligible keeps the first published tag regardless of the
	// other rules. The registry lists the most recently pushed tag first, so
	// this keeps the newest image under test even when it is not a plain release.
	LatestAlwaysEligible bool
}

// TestImages filters published image tags for testing and sorts them. When
// LatestAlwaysEligible applies, published[0] stays pinned at index 0 and only
// the tags after it are sorted, so the result is not fully sorted.
func TestImages(published []string, f ImageFilter) []string {
	var head []string
	rest := published
	if f.LatestAlwaysEligible && len(published) > 0 {
		head, rest = published[:1], published[1:]
	}

	var picked []string
	for _, tag := range rest {
		r, ok := version.Parse(tag)
		if !ok || r.IsPrerelease || r.IsLessThan(f.Floor) {
			continue
		}
		if f.MaxComponents > 0 && len(r.Numbers) > f.MaxComponents {
			continue
		}
		picked = append(picked, tag)
	}
	sort.Strings(picked)
	return append(append([]string(nil), head...), picked...)
}

// TestKey is the composite key of a docker test: image tag, variant name and
// variant update time, so that a rebuilt variant is tested again.
func TestKey(imageTag string, v Variant) string {
	return imageTag + "-docker-" + v.Name + "-" + normalizeTimestamp(v.LastUpdated)
}

// BranchTestKey is the composite key of a script test at one commit.
func BranchTestKey(imageTag string, b Branch) string {
	return imageTag + "-script-" + b.Name + "-" + b.CommitSHA
}

// NextTest scans variants outer and images inner and returns the first pair
// whose key is not in tested.
func NextTest(variants []Variant, images []string, tested sets.Set[string]) (WorkItem, bool) {
	for _, v := range variants {
		for _, img := range images {
			key := TestKey(img, v)
			if tested.Has(key) {
				continue
			}
			return WorkItem{Tag: img, CompositeKey: key, Variant: v.Name}, true
		}
	}
	return WorkItem{}, false
}

// NextBranchTest is the fallback pass over branch heads when every docker
// combination has been tested.
func NextBranchTest(branches []Branch, images []string, tested sets.Set[string]) (WorkItem, bool) {
	for _, b := range branches {
		for _, img := range images {
			key := BranchTestKey(img, b)
			if tested.Has(key) {
				continue
			}
			return WorkItem{Tag: img, CompositeKey: key, Branch: b.Name}, true
		}
	}
	return WorkItem{}, false
}

var timestampReplacer = strings.NewReplacer(":", "-", "T", "_")

// normalizeTimestamp makes an RFC 3339 timestamp usable inside an image tag.
func normalizeTimestamp(ts string) string {
	return timestampReplacer.Replace(ts)
}
