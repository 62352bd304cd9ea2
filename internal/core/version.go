package core

import (
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	debversion "github.com/knqyf263/go-deb-version"

	"noir-registry/internal/types"
)

// versionCache memoizes parsed release tags. Tags are compared as PEP 440
// versions first, which covers v-prefixed semver and pre-releases such as
// 1.0.0-beta.16; tags PEP 440 rejects fall back to Debian ordering.
type versionCache struct {
	pep map[string]*pep440.Version
	deb map[string]*debversion.Version
}

func newVersionCache() *versionCache {
	return &versionCache{
		pep: map[string]*pep440.Version{},
		deb: map[string]*debversion.Version{},
	}
}

func (c *versionCache) pepVersion(value string) (*pep440.Version, bool) {
	if parsed, ok := c.pep[value]; ok {
		return parsed, parsed != nil
	}
	parsed, err := pep440.Parse(value)
	if err != nil {
		c.pep[value] = nil
		return nil, false
	}
	c.pep[value] = &parsed
	return &parsed, true
}

func (c *versionCache) debVersion(value string) (*debversion.Version, bool) {
	if parsed, ok := c.deb[value]; ok {
		return parsed, parsed != nil
	}
	parsed, err := debversion.NewVersion(strings.TrimPrefix(strings.TrimPrefix(value, "v"), "V"))
	if err != nil {
		c.deb[value] = nil
		return nil, false
	}
	c.deb[value] = &parsed
	return &parsed, true
}

// compare returns -1, 0 or 1. ok is false when the tags share no ordering.
func (c *versionCache) compare(a string, b string) (int, bool) {
	if v1, ok := c.pepVersion(a); ok {
		if v2, ok := c.pepVersion(b); ok {
			return sign(v1.Compare(*v2)), true
		}
	}
	v1, ok1 := c.debVersion(a)
	v2, ok2 := c.debVersion(b)
	if ok1 && ok2 {
		return sign(v1.Compare(*v2)), true
	}
	return 0, false
}

func sign(value int) int {
	switch {
	case value < 0:
		return -1
	case value > 0:
		return 1
	}
	return 0
}

// CompareVersions orders two release tags. Tags with no common ordering
// compare equal.
func CompareVersions(a string, b string) int {
	result, _ := newVersionCache().compare(a, b)
	return result
}

// NewerRelease reports whether candidate should replace current as the
// package's latest version. Publish time decides; on equal publish times
// the higher version wins and an unordered pair keeps current.
func NewerRelease(candidate types.VersionRecord, current types.VersionRecord) bool {
	if candidate.PublishedAt.After(current.PublishedAt) {
		return true
	}
	if candidate.PublishedAt.Before(current.PublishedAt) {
		return false
	}
	return CompareVersions(candidate.Version, current.Version) > 0
}
