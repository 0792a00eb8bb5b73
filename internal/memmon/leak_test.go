package memmon

import (
	"testing"
	"time"
)

func snapshotsAt(base time.Time, step time.Duration, usedMB ...float64) []Snapshot {
	snapshots := make([]Snapshot, len(usedMB))
	for i, used := range usedMB {
		snapshots[i] = Snapshot{Timestamp: base.Add(time.Duration(i) * step), UsedMB: used}
	}
	return snapshots
}

func TestDetectLeakFlagsSustainedGrowth(t *testing.T) {
	base := time.Now().Add(-5 * time.Minute)
	history := snapshotsAt(base, time.Minute, 500, 520, 540, 555, 570, 585)
	now := history[len(history)-1].Timestamp

	growth, window, leaking := detectLeak(history, now)
	if !leaking {
		t.Fatal("expected sustained growth to be flagged")
	}
	wantGrowth := (585.0 - 500.0) / 500.0
	if diff := growth - wantGrowth; diff > 0.001 || diff < -0.001 {
		t.Fatalf("expected growth rate %.3f, got %.3f", wantGrowth, growth)
	}
	if window != 5*time.Minute {
		t.Fatalf("expected 5m window, got %s", window)
	}
}

func TestDetectLeakIgnoresTransientSpike(t *testing.T) {
	base := time.Now().Add(-5 * time.Minute)
	// Rises then falls back: the final sub-window average drops, so this is
	// a spike, not a leak.
	history := snapshotsAt(base, time.Minute, 500, 600, 620, 550, 510, 505)
	now := history[len(history)-1].Timestamp

	if _, _, leaking := detectLeak(history, now); leaking {
		t.Fatal("transient spike must not be flagged as a leak")
	}
}

func TestDetectLeakRequiresMinimumSamples(t *testing.T) {
	base := time.Now().Add(-4 * time.Minute)
	history := snapshotsAt(base, time.Minute, 500, 550, 600, 650, 700)

	if _, _, leaking := detectLeak(history, history[len(history)-1].Timestamp); leaking {
		t.Fatal("fewer than six samples must never flag a leak")
	}
}

func TestDetectLeakIgnoresSamplesOutsideWindow(t *testing.T) {
	now := time.Now()
	// An ancient high-growth run followed by a flat recent window.
	history := snapshotsAt(now.Add(-30*time.Minute), time.Minute, 100, 200, 300, 400, 500, 600)
	history = append(history, snapshotsAt(now.Add(-5*time.Minute), 50*time.Second, 600, 601, 600, 602, 601, 600)...)

	if _, _, leaking := detectLeak(history, now); leaking {
		t.Fatal("flat usage inside the window must not be flagged")
	}
}

func TestDetectLeakBelowGrowthThreshold(t *testing.T) {
	base := time.Now().Add(-5 * time.Minute)
	// Monotonic but under 5% overall growth.
	history := snapshotsAt(base, time.Minute, 500, 503, 506, 510, 515, 520)

	if _, _, leaking := detectLeak(history, history[len(history)-1].Timestamp); leaking {
		t.Fatal("growth under the threshold must not be flagged")
	}
}
