package app

import (
	"time"

	"noir-registry/internal/types"
)

type MigrateResult struct {
	Categories int
}

type IngestRequest struct {
	// Releases also records each repository's GitHub releases as versions.
	Releases bool
	// Delay is the pause between two enrichment calls.
	Delay time.Duration
}

type DeleteResult struct {
	Name    string
	Deleted bool
}

type AddRequest struct {
	Name         string
	ManifestPath string
	WorkDir      string
	Tag          string
	NoFetch      bool
}

type TagSource string

const (
	TagSourceFlag     TagSource = "flag"
	TagSourceRegistry TagSource = "registry"
	TagSourceGithub   TagSource = "github"
	TagSourceNone     TagSource = "none"
)

type AddResult struct {
	ManifestPath string
	Dependency   types.Dependency
	TagSource    TagSource
	// Checked is true when `nargo check` ran and passed.
	Checked bool
	// Warnings are non-fatal problems after the manifest was written.
	Warnings []string
}

type RemoveRequest struct {
	Names        []string
	ManifestPath string
	WorkDir      string
	Purge        bool
}

type RemoveResult struct {
	ManifestPath string
	Outcomes     []types.RemoveOutcome
}

// Missing lists the requested names that were not in the manifest.
func (r RemoveResult) Missing() []string {
	var names []string
	for _, outcome := range r.Outcomes {
		if !outcome.Removed {
			names = append(names, outcome.Name)
		}
	}
	return names
}
