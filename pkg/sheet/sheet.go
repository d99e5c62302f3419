// Package sheet maintains the XLSX upload log, one row per uploaded video.
package sheet

import (
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/vodkeep/vodsync/internal/model"
)

const sheetName = "Uploads"

var header = []string{
	"Match ID", "Date", "Result", "Score", "Agent", "Map",
	"Rank", "Video Link", "Local Path", "Uploaded At",
}

const dateLayout = "2006-01-02 15:04"

// ARGB fill colors, matching the workbook this log replaces.
const (
	headerFill = "FF538DD5"
	winFill    = "FF00FF00"
	lossFill   = "FFFF0000"
	drawFill   = "FF808080"
)

func headerStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font.Bold = true
	s.Font.Color = "FFFFFFFF"
	s.ApplyFont = true
	s.Fill = *xlsx.NewFill("solid", headerFill, headerFill)
	s.ApplyFill = true
	return s
}

func resultStyle(result model.MatchResult) *xlsx.Style {
	color := drawFill
	switch result {
	case model.ResultWin:
		color = winFill
	case model.ResultLoss:
		color = lossFill
	}
	s := xlsx.NewStyle()
	s.Fill = *xlsx.NewFill("solid", color, color)
	s.ApplyFill = true
	return s
}

// Row is one upload log entry.
type Row struct {
	MatchID    string
	Date       time.Time
	Result     model.MatchResult
	Score      string
	Agent      string
	Map        string
	Rank       string
	VideoLink  string
	LocalPath  string
	UploadedAt time.Time
}

// Log is an append-only XLSX workbook. The whole file is rewritten on every
// Append; uploads are slow enough that this never matters.
type Log struct {
	mu    sync.Mutex
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
	seen  map[string]bool
}

// Open loads the workbook at path, creating it with a header row when it
// does not exist yet.
func Open(path string) (*Log, error) {
	l := &Log{path: path, seen: make(map[string]bool)}

	if _, err := os.Stat(path); err == nil {
		f, err := xlsx.OpenFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "xlsx: open upload log")
		}
		sheet, ok := f.Sheet[sheetName]
		if !ok {
			if len(f.Sheets) == 0 {
				return nil, eris.Errorf("xlsx: %s has no sheets", path)
			}
			sheet = f.Sheets[0]
		}
		l.file = f
		l.sheet = sheet
		for i, row := range sheet.Rows {
			if i == 0 || len(row.Cells) == 0 {
				continue
			}
			l.seen[row.Cells[0].String()] = true
		}
		return l, nil
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: create sheet")
	}

	style := headerStyle()
	hr := sheet.AddRow()
	for _, col := range header {
		cell := hr.AddCell()
		cell.SetString(col)
		cell.SetStyle(style)
	}

	l.file = f
	l.sheet = sheet
	if err := f.Save(path); err != nil {
		return nil, eris.Wrap(err, "xlsx: save upload log")
	}
	return l, nil
}

// Has reports whether a row for the given match ID already exists.
func (l *Log) Has(matchID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[matchID]
}

// Append writes one row and saves the workbook. Appending a match ID twice
// is a no-op so re-runs cannot duplicate rows.
func (l *Log) Append(r Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[r.MatchID] {
		return nil
	}

	row := l.sheet.AddRow()
	for i, v := range []string{
		r.MatchID,
		r.Date.Format(dateLayout),
		string(r.Result),
		r.Score,
		r.Agent,
		r.Map,
		r.Rank,
		r.VideoLink,
		r.LocalPath,
		r.UploadedAt.Format(dateLayout),
	} {
		cell := row.AddCell()
		cell.SetString(v)
		// Result cell carries the win/loss color at a glance.
		if i == 2 {
			cell.SetStyle(resultStyle(r.Result))
		}
	}

	if err := l.file.Save(l.path); err != nil {
		return eris.Wrap(err, "xlsx: save upload log")
	}
	l.seen[r.MatchID] = true
	return nil
}

// Len returns the number of data rows.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
