// Package correlate resolves which remote match record a local recording
// captured.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/internal/resilience"
)

// HistorySource fetches match records overlapping a time range, one page at
// a time. Implementations own their transport-level retries; errors reaching
// the correlator mean the source's budget is exhausted.
type HistorySource interface {
	FetchMatches(ctx context.Context, from, to time.Time, page int) (records []model.MatchRecord, more bool, err error)
}

// RemoteUnavailableError marks a correlation that failed because the
// match-history service could not be reached. The orchestrator treats it as
// retryable, not fatal.
type RemoteUnavailableError struct {
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("match history service unavailable: %v", e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// IsRemoteUnavailable reports whether err stems from the history source
// being unreachable.
func IsRemoteUnavailable(err error) bool {
	var rue *RemoteUnavailableError
	return errors.As(err, &rue)
}

// maxPages bounds pagination so a source that keeps reporting more pages
// cannot stall a candidate forever.
const maxPages = 50

// Correlator binds candidates to match records under clock skew.
type Correlator struct {
	source HistorySource

	// skew widens the query window on both sides to absorb drift between
	// the recording machine's clock and the match service's clock, and the
	// ambiguity of whether a file timestamp marks recording start or end.
	skew time.Duration
}

// New creates a Correlator reading from the given source.
func New(source HistorySource, skewTolerance time.Duration) *Correlator {
	return &Correlator{source: source, skew: skewTolerance}
}

// Correlate queries the history source for records overlapping the
// candidate's recording window and deterministically binds at most one.
//
// Zero overlapping records is not an error: the correlation comes back
// unbound and the orchestrator decides whether the remote history may still
// populate. Multiple overlapping records bind the one whose start time is
// closest to the candidate's creation time, with the ambiguity flag set for
// manual review.
func (c *Correlator) Correlate(ctx context.Context, cand model.VideoCandidate) (model.Correlation, error) {
	corr := model.Correlation{Candidate: cand}

	from := cand.CreatedAt.Add(-c.skew)
	to := cand.CreatedAt.Add(cand.Duration + c.skew)

	var overlapping []model.MatchRecord
	for page := 1; page <= maxPages; page++ {
		records, more, err := c.source.FetchMatches(ctx, from, to, page)
		if err != nil {
			// Credential failures abort the whole run; everything else
			// reads as the remote being unavailable for this candidate.
			if resilience.IsCredential(err) {
				return corr, err
			}
			return corr, &RemoteUnavailableError{Err: err}
		}
		for _, rec := range records {
			if rec.Overlaps(from, to) {
				overlapping = append(overlapping, rec)
			}
		}
		if !more {
			break
		}
	}

	corr.Overlapping = len(overlapping)
	if len(overlapping) == 0 {
		return corr, nil
	}

	best := closestStart(overlapping, cand.CreatedAt)
	corr.Match = &best
	if len(overlapping) > 1 {
		corr.Ambiguous = true
		zap.L().Warn("ambiguous correlation, using closest start time",
			zap.String("path", cand.Path),
			zap.Int("overlapping", len(overlapping)),
			zap.String("match_id", best.ID),
		)
	}
	return corr, nil
}

// closestStart picks the record whose start time is nearest to ref. Ties go
// to the earlier start, then the smaller ID, so repeated calls over the same
// records always agree.
func closestStart(records []model.MatchRecord, ref time.Time) model.MatchRecord {
	sorted := make([]model.MatchRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := absDelta(sorted[i].StartedAt, ref), absDelta(sorted[j].StartedAt, ref)
		if di != dj {
			return di < dj
		}
		if !sorted[i].StartedAt.Equal(sorted[j].StartedAt) {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
