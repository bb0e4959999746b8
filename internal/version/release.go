package version

import (
	"strconv"
	"strings"
)

// Release is a parsed upstream release identifier such as "1.4.2.1" or "1.5-rc.2".
type Release struct {
	// Numbers holds the numeric components in order.
	Numbers []int

	// IsPrerelease is set when the identifier carries a non-numeric qualifier.
	IsPrerelease bool
}

// Parse parses a dot-separated release identifier.
//
// Components are read left to right. The first component that is not a plain
// non-negative integer marks the release as a prerelease and ends numeric
// extraction; its leading digits, if any, are kept ("1-rc1" contributes 1).
// The second return value is false when no numeric component could be read.
func Parse(text string) (Release, bool) {
	var r Release
	for _, part := range strings.Split(strings.TrimSpace(text), ".") {
		if n, ok := atoi(part); ok {
			r.Numbers = append(r.Numbers, n)
			continue
		}
		r.IsPrerelease = true
		if n, ok := atoi(leadingDigits(part)); ok {
			r.Numbers = append(r.Numbers, n)
		}
		break
	}
	if len(r.Numbers) == 0 {
		return Release{}, false
	}
	return r, true
}

// MustParse is like Parse but panics on malformed input. Intended for constants.
func MustParse(text string) Release {
	r, ok := Parse(text)
	if !ok {
		panic("version: malformed release " + strconv.Quote(text))
	}
	return r
}

// Compare returns -1, 0 or 1 depending on whether a is less than, equal to or
// greater than b. Missing trailing components count as zero, and the
// prerelease flag is ignored.
func Compare(a, b Release) int {
	n := max(len(a.Numbers), len(b.Numbers))
	for i := 0; i < n; i++ {
		x, y := at(a.Numbers, i), at(b.Numbers, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// IsAtLeast reports whether r >= floor.
func (r Release) IsAtLeast(floor Release) bool {
	return Compare(r, floor) >= 0
}

// IsLessThan reports whether r < floor.
func (r Release) IsLessThan(floor Release) bool {
	return Compare(r, floor) < 0
}

// String renders the numeric components joined by dots, with a "-pre" suffix
// for prereleases.
func (r Release) String() string {
	parts := make([]string, len(r.Numbers))
	for i, n := range r.Numbers {
		parts[i] = strconv.Itoa(n)
	}
	s := strings.Join(parts, ".")
	if r.IsPrerelease {
		s += "-pre"
	}
	return s
}

func at(nums []int, i int) int {
	if i < len(nums) {
		return nums[i]
	}
	return 0
}

// atoi accepts only ASCII digits, so signs and spaces are rejected.
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
