package schema

import (
	"errors"
	"fmt"
)

// Version is a configuration format version.
type Version string

// Every format version that has ever shipped, oldest first. Documents written
// before format versioning existed are V010.
const (
	V010 Version = "0.1.0"
	V020 Version = "0.2.0"
)

// Latest is the version new documents are written in.
const Latest = V020

// Oldest is assumed for documents without a format_version.
const Oldest = V010

// ErrUnknownVersion means no schema exists for a format version. It signals
// version skew between the installer and the document, not a user mistake.
var ErrUnknownVersion = errors.New("schema: unknown format version")

var knownVersions = []Version{V010, V020}

// Known returns every known version, oldest first.
func Known() []Version {
	return append([]Version(nil), knownVersions...)
}

// ParseVersion maps a format_version string to a known Version.
func ParseVersion(s string) (Version, error) {
	for _, v := range knownVersions {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}

// Index returns the position of v in the version order, or -1.
func (v Version) Index() int {
	for i, known := range knownVersions {
		if known == v {
			return i
		}
	}
	return -1
}

// Next returns the version following v, if any.
func (v Version) Next() (Version, bool) {
	i := v.Index()
	if i < 0 || i+1 >= len(knownVersions) {
		return "", false
	}
	return knownVersions[i+1], true
}

// Before reports whether v is older than other.
func (v Version) Before(other Version) bool {
	return v.Index() < other.Index()
}

func (v Version) String() string {
	return string(v)
}
