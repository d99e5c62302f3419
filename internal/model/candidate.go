package model

import "time"

// RawFile describes a video file as discovered on disk, before filtering.
type RawFile struct {
	Path      string        `json:"path"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// VideoCandidate is a local recording eligible for correlation and upload.
// Candidates are rebuilt from disk on every run and never persisted.
type VideoCandidate struct {
	Path        string        `json:"path"`
	Fingerprint string        `json:"fingerprint"` // content hash; stable across renames
	CreatedAt   time.Time     `json:"created_at"`  // UTC
	Duration    time.Duration `json:"duration"`
}

// Key returns the ledger key for the candidate. The content fingerprint is
// preferred so renamed or moved files are still recognized; the path is the
// fallback for files that could not be hashed.
func (c VideoCandidate) Key() string {
	if c.Fingerprint != "" {
		return c.Fingerprint
	}
	return c.Path
}
