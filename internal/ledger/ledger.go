// Package ledger is the durable record of per-candidate processing state.
// It is the single source of truth for idempotence: a candidate whose entry
// is uploaded is never uploaded again, and a run interrupted at any point
// resumes from whatever states were durably written.
package ledger

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/vodkeep/vodsync/internal/model"
)

// ErrTerminalState is returned by Put when a write would move an entry out
// of a terminal state (uploaded, failed-permanent).
var ErrTerminalState = eris.New("ledger entry is in a terminal state")

// Filter specifies criteria for listing ledger entries. A Limit of zero or
// less returns every matching entry.
type Filter struct {
	State model.EntryState `json:"state,omitempty"`
	Limit int              `json:"limit,omitempty"`
}

// Ledger defines the persistence interface for candidate processing state.
// Every mutation is a full-entry overwrite, durable before the call returns.
type Ledger interface {
	// Get returns the entry for key, or nil if none exists.
	Get(ctx context.Context, key string) (*model.LedgerEntry, error)

	// Put atomically upserts the full entry. It fails with ErrTerminalState
	// when the existing entry is terminal and the write would change state.
	Put(ctx context.Context, entry model.LedgerEntry) error

	// Exists reports whether an entry for key is in the given state.
	Exists(ctx context.Context, key string, state model.EntryState) (bool, error)

	// RecordMiss notes that one more independent run found no match for the
	// candidate. Once the count reaches threshold the entry flips to
	// failed-permanent. Returns the updated entry.
	RecordMiss(ctx context.Context, key, path string, threshold int) (*model.LedgerEntry, error)

	// List returns entries matching the filter, most recently attempted first.
	List(ctx context.Context, filter Filter) ([]model.LedgerEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// WriteError marks a ledger mutation that failed after its side effect
// already happened (the video is uploaded, the entry is not). The run report
// surfaces it for manual reconciliation.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write for %s failed: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
