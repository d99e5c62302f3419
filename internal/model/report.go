package model

import "time"

// Outcome is the terminal state a candidate reached within one run.
type Outcome string

const (
	OutcomeDone     Outcome = "done"     // uploaded and recorded this run
	OutcomeSkipped  Outcome = "skipped"  // already uploaded, or no match found
	OutcomeDeferred Outcome = "deferred" // matched but quota blocked the upload
	OutcomeFailed   Outcome = "failed"   // retry budget exhausted or ledger error
)

// CandidateResult is the per-candidate line item of a run report.
type CandidateResult struct {
	Key     string  `json:"key"`
	Path    string  `json:"path"`
	Outcome Outcome `json:"outcome"`
	VideoID string  `json:"video_id,omitempty"`
	Warning string  `json:"warning,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// RunReport aggregates the terminal outcomes of one pipeline run.
type RunReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Done       int               `json:"done"`
	Skipped    int               `json:"skipped"`
	Deferred   int               `json:"deferred"`
	Failed     int               `json:"failed"`
	Results    []CandidateResult `json:"results"`

	// Ambiguous lists correlations where multiple match records overlapped
	// the candidate's window; the best guess was used but needs review.
	Ambiguous []Correlation `json:"ambiguous,omitempty"`

	// Warnings are run-level conditions needing manual reconciliation,
	// such as a ledger entry whose spreadsheet row could not be appended.
	Warnings []string `json:"warnings,omitempty"`
}

// Add records one candidate result, updating the aggregate counters.
func (r *RunReport) Add(res CandidateResult) {
	switch res.Outcome {
	case OutcomeDone:
		r.Done++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}
