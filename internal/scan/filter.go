// Package scan discovers local recordings and narrows them down to upload
// candidates.
package scan

import (
	"time"

	"github.com/vodkeep/vodsync/internal/model"
)

// Filter selects eligible candidates from raw files. Files shorter than
// minDuration are dropped (menu screens, truncated clips), as are files whose
// creation timestamp is older than now-maxAge — the match-history window the
// correlator can query against is time-bounded, so stale footage can no
// longer be matched. The age boundary is exclusive: a file aged exactly
// maxAge is dropped. Output preserves input order.
func Filter(files []model.RawFile, minDuration, maxAge time.Duration, now time.Time) []model.VideoCandidate {
	cutoff := now.Add(-maxAge)

	candidates := make([]model.VideoCandidate, 0, len(files))
	for _, f := range files {
		if f.Duration < minDuration {
			continue
		}
		if !f.CreatedAt.After(cutoff) {
			continue
		}
		candidates = append(candidates, model.VideoCandidate{
			Path:      f.Path,
			CreatedAt: f.CreatedAt.UTC(),
			Duration:  f.Duration,
		})
	}
	return candidates
}
