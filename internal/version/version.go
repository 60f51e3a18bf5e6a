// Package version decides whether desktop clients are too old and which build they should move to.
package version

import (
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"desktop-license-server/config"
)

// Parse accepts major.minor.patch with an optional leading "v" and optional
// pre-release/build suffixes. Partial versions such as "1.2" are rejected.
func Parse(s string) (*semver.Version, error) {
	return semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
}

// IsTooOld reports whether current sorts below minimum. Malformed input on
// either side counts as too old so the client is pushed to update.
func IsTooOld(current, minimum string) bool {
	cur, err := Parse(current)
	if err != nil {
		return true
	}
	minV, err := Parse(minimum)
	if err != nil {
		return true
	}
	return cur.LessThan(minV)
}

// Gate holds the configured minimum version
type Gate struct {
	minimum string
}

// NewGate creates a gate for the given minimum
func NewGate(minimum string) *Gate {
	return &Gate{minimum: minimum}
}

// Minimum returns the configured minimum version
func (g *Gate) Minimum() string {
	return g.minimum
}

// UpdateRequired reports whether a client reporting current must update.
// An unreported version is not flagged.
func (g *Gate) UpdateRequired(current string) bool {
	if strings.TrimSpace(current) == "" {
		return false
	}
	return IsTooOld(current, g.minimum)
}

// Release is one published build
type Release struct {
	Platform    string    `json:"platform"`
	Arch        string    `json:"arch"`
	Version     string    `json:"version"`
	URL         string    `json:"url"`
	SHA256      string    `json:"sha256,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`

	parsed *semver.Version
}

// Update is the answer to an update check
type Update struct {
	UpToDate  bool     `json:"up_to_date"`
	Mandatory bool     `json:"mandatory"`
	Latest    *Release `json:"latest,omitempty"`
}

// Catalog indexes the newest releases per platform and architecture
type Catalog struct {
	gate     *Gate
	releases map[string][]*Release // platform/arch -> newest first
}

// NewCatalog builds a catalog from configuration. Releases with unparseable versions are skipped.
func NewCatalog(gate *Gate, releases []config.Release) *Catalog {
	c := &Catalog{gate: gate, releases: make(map[string][]*Release)}
	for _, r := range releases {
		v, err := Parse(r.Version)
		if err != nil {
			continue
		}
		rel := &Release{
			Platform:    strings.ToLower(r.Platform),
			Arch:        strings.ToLower(r.Arch),
			Version:     v.String(),
			URL:         r.URL,
			SHA256:      r.SHA256,
			Notes:       r.Notes,
			PublishedAt: r.PublishedAt,
			parsed:      v,
		}
		key := catalogKey(rel.Platform, rel.Arch)
		c.releases[key] = append(c.releases[key], rel)
	}
	for _, list := range c.releases {
		sort.Slice(list, func(i, j int) bool {
			return list[i].parsed.GreaterThan(list[j].parsed)
		})
	}
	return c
}

func catalogKey(platform, arch string) string {
	return strings.ToLower(platform) + "/" + strings.ToLower(arch)
}

// Lookup finds the update for a client. ok is false when the platform/arch pair is unknown.
// A malformed current version is offered the newest release as mandatory.
func (c *Catalog) Lookup(platform, arch, current string) (Update, bool) {
	list := c.releases[catalogKey(platform, arch)]
	if len(list) == 0 {
		return Update{}, false
	}
	latest := list[0]

	cur, err := Parse(current)
	if err != nil {
		return Update{Mandatory: true, Latest: latest}, true
	}
	if !cur.LessThan(latest.parsed) {
		return Update{UpToDate: true}, true
	}
	return Update{
		Mandatory: c.gate.UpdateRequired(current),
		Latest:    latest,
	}, true
}
