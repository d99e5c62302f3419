package scan

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/vodkeep/vodsync/internal/model"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func rawFile(path string, age, dur time.Duration) model.RawFile {
	return model.RawFile{
		Path:      path,
		CreatedAt: testNow.Add(-age),
		Duration:  dur,
	}
}

func TestFilter_DropsShortVideos(t *testing.T) {
	files := []model.RawFile{
		rawFile("a.mp4", time.Hour, 19*time.Minute),
		rawFile("b.mp4", time.Hour, 20*time.Minute),
		rawFile("c.mp4", time.Hour, 45*time.Minute),
	}

	got := Filter(files, 20*time.Minute, 7*24*time.Hour, testNow)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Path != "b.mp4" || got[1].Path != "c.mp4" {
		t.Errorf("wrong candidates: %v", got)
	}
}

func TestFilter_DropsOldVideos_BoundaryExclusive(t *testing.T) {
	maxAge := 7 * 24 * time.Hour
	files := []model.RawFile{
		rawFile("fresh.mp4", maxAge-time.Second, 30*time.Minute),
		rawFile("boundary.mp4", maxAge, 30*time.Minute),
		rawFile("stale.mp4", maxAge+time.Second, 30*time.Minute),
	}

	got := Filter(files, 20*time.Minute, maxAge, testNow)
	if len(got) != 1 {
		t.Fatalf("expected only the fresh file, got %d: %v", len(got), got)
	}
	if got[0].Path != "fresh.mp4" {
		t.Errorf("expected fresh.mp4, got %s", got[0].Path)
	}
}

func TestFilter_PreservesInputOrder(t *testing.T) {
	var files []model.RawFile
	for i := 0; i < 10; i++ {
		files = append(files, rawFile(fmt.Sprintf("v%02d.mp4", i), time.Hour, 30*time.Minute))
	}

	got := Filter(files, 20*time.Minute, 7*24*time.Hour, testNow)
	for i, c := range got {
		if want := fmt.Sprintf("v%02d.mp4", i); c.Path != want {
			t.Fatalf("order not preserved at %d: got %s want %s", i, c.Path, want)
		}
	}
}

func TestFilter_RandomizedDurationThreshold(t *testing.T) {
	minDur := 20 * time.Minute
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		// Durations straddling the threshold by up to ±5 minutes.
		offset := time.Duration(rng.Int63n(int64(10*time.Minute))) - 5*time.Minute
		dur := minDur + offset

		got := Filter([]model.RawFile{rawFile("x.mp4", time.Hour, dur)}, minDur, 7*24*time.Hour, testNow)
		kept := len(got) == 1
		if want := dur >= minDur; kept != want {
			t.Fatalf("duration %v: kept=%v want=%v", dur, kept, want)
		}
	}
}

func TestFilter_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	files := []model.RawFile{{
		Path:      "tz.mp4",
		CreatedAt: testNow.In(loc).Add(-time.Hour),
		Duration:  30 * time.Minute,
	}}

	got := Filter(files, 20*time.Minute, 7*24*time.Hour, testNow)
	if len(got) != 1 {
		t.Fatal("expected candidate to survive")
	}
	if got[0].CreatedAt.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", got[0].CreatedAt.Location())
	}
}

func TestFilter_Empty(t *testing.T) {
	if got := Filter(nil, 20*time.Minute, 7*24*time.Hour, testNow); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
