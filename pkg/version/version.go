// Package version identifies this release of tether-go.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Product is the name sent in the WebSocket User-Agent header.
const Product = "tether-go"

// Current is the release implemented by this module.
const Current = "1.0"

// Version represents a parsed "major.minor" release.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// UserAgent returns "tether-go/<Current>".
func UserAgent() string {
	return Product + "/" + Current
}

// FromUserAgent extracts the version from a User-Agent value produced by
// UserAgent. Anything after the first space is ignored.
func FromUserAgent(ua string) (Version, error) {
	ua, _, _ = strings.Cut(ua, " ")
	rest, ok := strings.CutPrefix(ua, Product+"/")
	if !ok {
		return Version{}, fmt.Errorf("not a %s user agent: %q", Product, ua)
	}
	return Parse(rest)
}
