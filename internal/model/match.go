package model

import (
	"fmt"
	"time"
)

// MatchResult is the outcome of a match from the player's perspective.
type MatchResult string

const (
	ResultWin  MatchResult = "Win"
	ResultLoss MatchResult = "Loss"
	ResultDraw MatchResult = "Draw"
)

// MatchRecord is one completed game session as reported by the match-history
// API. Records are immutable and cached in memory for a single run only.
type MatchRecord struct {
	ID        string      `json:"id"`
	StartedAt time.Time   `json:"started_at"` // UTC
	EndedAt   time.Time   `json:"ended_at"`   // UTC
	Map       string      `json:"map"`
	Agent     string      `json:"agent"`
	Mode      string      `json:"mode"`
	Result    MatchResult `json:"result"`
	Score     string      `json:"score"` // "13-4", player team first
	Rank      string      `json:"rank"`  // rank going into the match
}

// Overlaps reports whether the match interval intersects [from, to].
func (m MatchRecord) Overlaps(from, to time.Time) bool {
	return !m.StartedAt.After(to) && !m.EndedAt.Before(from)
}

// Title builds the upload title for the match's video.
func (m MatchRecord) Title() string {
	return fmt.Sprintf("%s, %s | %s | %s %s | %s",
		m.Agent, m.Map, m.StartedAt.Format("Jan 2, 2006"), m.Result, m.Score, m.Rank)
}

// Correlation binds a candidate to at most one match record.
type Correlation struct {
	Candidate VideoCandidate `json:"candidate"`
	Match     *MatchRecord   `json:"match,omitempty"`

	// Ambiguous is set when more than one record overlapped the query
	// window and the closest-start rule picked one. The binding is still
	// used, but surfaced for manual review.
	Ambiguous bool `json:"ambiguous"`

	// Overlapping is the number of records that intersected the window.
	Overlapping int `json:"overlapping"`
}
