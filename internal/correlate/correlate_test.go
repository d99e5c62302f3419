package correlate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/internal/resilience"
)

// fakeSource serves canned pages and records the windows it was asked for.
type fakeSource struct {
	pages   [][]model.MatchRecord
	err     error
	calls   int
	lastWin [2]time.Time
}

func (f *fakeSource) FetchMatches(_ context.Context, from, to time.Time, page int) ([]model.MatchRecord, bool, error) {
	f.calls++
	f.lastWin = [2]time.Time{from, to}
	if f.err != nil {
		return nil, false, f.err
	}
	if page > len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page-1], page < len(f.pages), nil
}

func mkMatch(id string, start time.Time, length time.Duration) model.MatchRecord {
	return model.MatchRecord{
		ID:        id,
		StartedAt: start,
		EndedAt:   start.Add(length),
		Map:       "Ascent",
		Agent:     "Jett",
	}
}

func mkCandidate(created time.Time, dur time.Duration) model.VideoCandidate {
	return model.VideoCandidate{
		Path:      "match.mp4",
		CreatedAt: created,
		Duration:  dur,
	}
}

func TestCorrelate_SingleOverlap(t *testing.T) {
	created := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	src := &fakeSource{pages: [][]model.MatchRecord{{
		mkMatch("m1", created.Add(2*time.Minute), 35*time.Minute),
	}}}

	c := New(src, 5*time.Minute)
	corr, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corr.Match == nil || corr.Match.ID != "m1" {
		t.Fatalf("expected m1 bound, got %+v", corr.Match)
	}
	if corr.Ambiguous {
		t.Error("single overlap must not be ambiguous")
	}
}

func TestCorrelate_NoOverlap(t *testing.T) {
	created := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	src := &fakeSource{pages: [][]model.MatchRecord{{
		mkMatch("far", created.Add(-6*time.Hour), 30*time.Minute),
	}}}

	c := New(src, 5*time.Minute)
	corr, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
	if err != nil {
		t.Fatalf("no overlap is not an error: %v", err)
	}
	if corr.Match != nil {
		t.Errorf("expected unbound correlation, got %+v", corr.Match)
	}
}

// Candidate created 20:00, duration 40m, skew 5m; records start 19:58 and
// 20:30. Both overlap the window [19:55, 20:45]; the 19:58 one is closest to
// creation time and must be bound with the ambiguity flag set.
func TestCorrelate_AmbiguousPicksClosestStart(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	created := day.Add(20 * time.Hour)
	src := &fakeSource{pages: [][]model.MatchRecord{{
		mkMatch("early", day.Add(19*time.Hour+58*time.Minute), 30*time.Minute),
		mkMatch("late", day.Add(20*time.Hour+30*time.Minute), 30*time.Minute),
	}}}

	c := New(src, 5*time.Minute)
	corr, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corr.Match == nil || corr.Match.ID != "early" {
		t.Fatalf("expected 19:58 match bound, got %+v", corr.Match)
	}
	if !corr.Ambiguous {
		t.Error("two overlapping records must set the ambiguity flag")
	}
	if corr.Overlapping != 2 {
		t.Errorf("expected 2 overlapping, got %d", corr.Overlapping)
	}
}

func TestCorrelate_Deterministic(t *testing.T) {
	created := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	records := []model.MatchRecord{
		mkMatch("b", created.Add(10*time.Minute), 30*time.Minute),
		mkMatch("a", created.Add(-10*time.Minute), 30*time.Minute), // same delta
		mkMatch("c", created.Add(20*time.Minute), 30*time.Minute),
	}

	var first string
	for i := 0; i < 20; i++ {
		src := &fakeSource{pages: [][]model.MatchRecord{records}}
		c := New(src, 5*time.Minute)
		corr, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if corr.Match == nil {
			t.Fatal("expected a bound match")
		}
		if i == 0 {
			first = corr.Match.ID
			// Equal deltas tie-break toward the earlier start.
			if first != "a" {
				t.Fatalf("expected earlier start on tie, got %s", first)
			}
			continue
		}
		if corr.Match.ID != first {
			t.Fatalf("selection not deterministic: %s then %s", first, corr.Match.ID)
		}
	}
}

func TestCorrelate_AccumulatesAcrossPages(t *testing.T) {
	created := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	src := &fakeSource{pages: [][]model.MatchRecord{
		{mkMatch("p1", created.Add(30*time.Minute), 30*time.Minute)},
		{mkMatch("p2", created.Add(time.Minute), 30*time.Minute)},
	}}

	c := New(src, 5*time.Minute)
	corr, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("expected both pages fetched, got %d calls", src.calls)
	}
	if corr.Match == nil || corr.Match.ID != "p2" {
		t.Errorf("expected p2 (closest) across pages, got %+v", corr.Match)
	}
	if !corr.Ambiguous {
		t.Error("expected ambiguity across pages")
	}
}

func TestCorrelate_WindowIncludesSkew(t *testing.T) {
	created := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	src := &fakeSource{pages: [][]model.MatchRecord{nil}}

	c := New(src, 5*time.Minute)
	_, err := c.Correlate(context.Background(), mkCandidate(created, 40*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	wantFrom := created.Add(-5 * time.Minute)
	wantTo := created.Add(45 * time.Minute)
	if !src.lastWin[0].Equal(wantFrom) || !src.lastWin[1].Equal(wantTo) {
		t.Errorf("window [%v, %v], want [%v, %v]", src.lastWin[0], src.lastWin[1], wantFrom, wantTo)
	}
}

func TestCorrelate_SourceErrorIsRemoteUnavailable(t *testing.T) {
	src := &fakeSource{err: resilience.NewTransientError(errors.New("connect timeout"), 0)}

	c := New(src, 5*time.Minute)
	_, err := c.Correlate(context.Background(), mkCandidate(time.Now().UTC(), 30*time.Minute))
	if !IsRemoteUnavailable(err) {
		t.Fatalf("expected RemoteUnavailable, got %v", err)
	}
	// The transport classification must survive for the retry policy.
	if !resilience.IsTransient(err) {
		t.Error("wrapped source error should stay transient")
	}
}

func TestCorrelate_CredentialErrorPassesThrough(t *testing.T) {
	src := &fakeSource{err: resilience.NewCredentialError(errors.New("401 unauthorized"))}

	c := New(src, 5*time.Minute)
	_, err := c.Correlate(context.Background(), mkCandidate(time.Now().UTC(), 30*time.Minute))
	if IsRemoteUnavailable(err) {
		t.Error("credential failure must not read as remote unavailable")
	}
	if !resilience.IsCredential(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
}
