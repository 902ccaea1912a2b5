// Package contractver defines the ABP contract version grammar and the
// process-wide current value, shared by the wire codec (C4) and the
// receipt model (C2) so both stamp and compare the same constant.
package contractver

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the contract version this build of the core implements.
const Current = "abp/v0.1"

// Version is a parsed "abp/vMAJOR.MINOR" value.
type Version struct {
	Major uint32
	Minor uint32
}

// Parse parses s against the grammar "abp/v" MAJOR "." MINOR where
// MAJOR and MINOR are unsigned decimals with no extra components.
// Any deviation, including extra dot-separated segments, returns
// ok == false (spec §4.4).
func Parse(s string) (v Version, ok bool) {
	const prefix = "abp/v"
	if !strings.HasPrefix(s, prefix) {
		return Version{}, false
	}
	rest := strings.TrimPrefix(s, prefix)
	parts := strings.Split(rest, ".")
	if len(parts) != 2 {
		return Version{}, false
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Version{}, false
	}
	return Version{Major: uint32(major), Minor: uint32(minor)}, true
}

// String renders v back into the "abp/vMAJOR.MINOR" grammar.
func (v Version) String() string {
	return fmt.Sprintf("abp/v%d.%d", v.Major, v.Minor)
}

// IsCompatible reports whether a and b parse and share the same major
// version (spec §4.4, §8).
func IsCompatible(a, b string) bool {
	va, ok := Parse(a)
	if !ok {
		return false
	}
	vb, ok := Parse(b)
	if !ok {
		return false
	}
	return va.Major == vb.Major
}
