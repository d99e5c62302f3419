package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vodkeep/vodsync/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite. Each mutation is
// a single upsert statement, so a crash can never leave a half-written
// entry, and sqlite serializes concurrent writers per database.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database at the given path and
// configures WAL mode so the write of one worker never blocks the reads of
// the others.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const ledgerMigration = `
CREATE TABLE IF NOT EXISTS entries (
	key          TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT 'pending',
	match_id     TEXT NOT NULL DEFAULT '',
	video_id     TEXT NOT NULL DEFAULT '',
	last_error   TEXT NOT NULL DEFAULT '',
	miss_count   INTEGER NOT NULL DEFAULT 0,
	attempted_at DATETIME NOT NULL,
	uploaded_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_entries_state ON entries(state);
CREATE INDEX IF NOT EXISTS idx_entries_attempted_at ON entries(attempted_at);
`

func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, ledgerMigration)
	return eris.Wrap(err, "ledger: migrate")
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Get(ctx context.Context, key string) (*model.LedgerEntry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT key, path, state, match_id, video_id, last_error, miss_count, attempted_at, uploaded_at
		 FROM entries WHERE key = ?`,
		key,
	)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: get %s", key)
	}
	return entry, nil
}

func (l *SQLiteLedger) Put(ctx context.Context, entry model.LedgerEntry) error {
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = time.Now().UTC()
	}

	var uploadedAt any
	if !entry.UploadedAt.IsZero() {
		uploadedAt = entry.UploadedAt.UTC()
	}

	// The WHERE clause on the upsert refuses to move a terminal entry to a
	// different state; writing the same state (refreshing metadata) is fine.
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO entries (key, path, state, match_id, video_id, last_error, miss_count, attempted_at, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			state = excluded.state,
			match_id = excluded.match_id,
			video_id = excluded.video_id,
			last_error = excluded.last_error,
			miss_count = excluded.miss_count,
			attempted_at = excluded.attempted_at,
			uploaded_at = excluded.uploaded_at
		 WHERE entries.state NOT IN ('uploaded', 'failed-permanent')
		    OR entries.state = excluded.state`,
		entry.Key, entry.Path, string(entry.State), entry.MatchID, entry.VideoID,
		entry.LastError, entry.MissCount, entry.AttemptedAt.UTC(), uploadedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: put %s", entry.Key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "ledger: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrTerminalState, "put %s as %s", entry.Key, entry.State)
	}
	return nil
}

func (l *SQLiteLedger) Exists(ctx context.Context, key string, state model.EntryState) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM entries WHERE key = ? AND state = ?`,
		key, string(state),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "ledger: exists %s", key)
	}
	return true, nil
}

func (l *SQLiteLedger) RecordMiss(ctx context.Context, key, path string, threshold int) (*model.LedgerEntry, error) {
	now := time.Now().UTC()

	// One statement so two workers can never race the counter past the
	// threshold. Terminal entries are left untouched.
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO entries (key, path, state, miss_count, attempted_at)
		 VALUES (?, ?, 'pending', 1, ?)
		 ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			miss_count = entries.miss_count + 1,
			state = CASE WHEN entries.miss_count + 1 >= ? THEN 'failed-permanent' ELSE entries.state END,
			last_error = CASE WHEN entries.miss_count + 1 >= ? THEN 'no match found after repeated runs' ELSE entries.last_error END,
			attempted_at = excluded.attempted_at
		 WHERE entries.state = 'pending'`,
		key, path, now, threshold, threshold,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: record miss %s", key)
	}

	// threshold == 1 flips a brand-new entry immediately.
	if threshold <= 1 {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE entries SET state = 'failed-permanent',
				last_error = 'no match found after repeated runs'
			 WHERE key = ? AND state = 'pending' AND miss_count >= ?`,
			key, threshold,
		); err != nil {
			return nil, eris.Wrapf(err, "ledger: record miss %s", key)
		}
	}

	return l.Get(ctx, key)
}

func (l *SQLiteLedger) List(ctx context.Context, filter Filter) ([]model.LedgerEntry, error) {
	query := `SELECT key, path, state, match_id, video_id, last_error, miss_count, attempted_at, uploaded_at
	          FROM entries WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY attempted_at DESC`

	// Limit <= 0 returns everything; report reconciliation walks the whole
	// ledger and must never miss an entry.
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: scan entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "ledger: list iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var state string
	var uploadedAt sql.NullTime

	err := row.Scan(&e.Key, &e.Path, &state, &e.MatchID, &e.VideoID,
		&e.LastError, &e.MissCount, &e.AttemptedAt, &uploadedAt)
	if err != nil {
		return nil, err
	}

	e.State = model.EntryState(state)
	if uploadedAt.Valid {
		e.UploadedAt = uploadedAt.Time
	}
	return &e, nil
}
