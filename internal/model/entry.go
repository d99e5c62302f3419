package model

import "time"

// EntryState is the processing state of a candidate in the upload ledger.
type EntryState string

const (
	// StatePending means the candidate has been seen but not uploaded.
	// Pending entries are retried on every run.
	StatePending EntryState = "pending"
	// StateUploaded is terminal: the video is on the remote platform.
	StateUploaded EntryState = "uploaded"
	// StateFailedPermanent is terminal: no match was ever found, or the
	// candidate was rejected in a way no retry can fix.
	StateFailedPermanent EntryState = "failed-permanent"
)

// Terminal reports whether the state permits no further transitions.
func (s EntryState) Terminal() bool {
	return s == StateUploaded || s == StateFailedPermanent
}

// LedgerEntry is the durable processing record for one candidate. Entries
// are owned by the ledger and mutated only through pipeline transitions.
type LedgerEntry struct {
	Key         string     `json:"key"`  // candidate fingerprint (or path)
	Path        string     `json:"path"` // last known local path
	State       EntryState `json:"state"`
	MatchID     string     `json:"match_id,omitempty"`
	VideoID     string     `json:"video_id,omitempty"` // remote upload id
	LastError   string     `json:"last_error,omitempty"`
	MissCount   int        `json:"miss_count"` // runs that found no match
	AttemptedAt time.Time  `json:"attempted_at"`
	UploadedAt  time.Time  `json:"uploaded_at,omitzero"`
}
