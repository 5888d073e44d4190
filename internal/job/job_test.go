package job

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/media"
)

func testAsset(key string) *media.MediaAsset {
	return &media.MediaAsset{
		CanonicalURL: "https://cdn.x/" + key,
		Key:          key,
		TabID:        7,
		Kind:         media.DeliveryM3U8,
	}
}

func TestLifecycle(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	id := m.Create(testAsset("a"))
	j, ok := m.Get(id)
	if !ok {
		t.Fatal("Expected job to exist")
	}
	if j.State != StatePending {
		t.Errorf("Expected pending, got %s", j.State)
	}
	if j.AssetKey != "a" || j.TabID != 7 || j.Kind != media.DeliveryM3U8 {
		t.Errorf("Expected asset fields copied, got %+v", j)
	}

	m.Start(id)
	if j, _ = m.Get(id); j.State != StateInProgress {
		t.Errorf("Expected in_progress, got %s", j.State)
	}

	m.SetPercent(id, 40)
	m.AddResult(id, "/tmp/out_part1.ts")
	m.Complete(id)

	j, _ = m.Get(id)
	if j.State != StateComplete {
		t.Errorf("Expected complete, got %s", j.State)
	}
	if j.Progress.Percent != 100 || !j.Progress.TotalKnown {
		t.Errorf("Expected completion to pin percent at 100, got %+v", j.Progress)
	}
	if len(j.ResultPaths) != 1 || j.ResultPaths[0] != "/tmp/out_part1.ts" {
		t.Errorf("Expected result path recorded, got %v", j.ResultPaths)
	}
	if j.FinishedAt.IsZero() {
		t.Error("Expected FinishedAt to be set")
	}
}

func TestInterrupt(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	id := m.Create(testAsset("a"))
	m.Start(id)
	m.Interrupt(id, "all segment fetches failed")

	j, _ := m.Get(id)
	if j.State != StateInterrupted {
		t.Errorf("Expected interrupted, got %s", j.State)
	}
	if j.Error != "all segment fetches failed" {
		t.Errorf("Expected error message, got %q", j.Error)
	}
	if !j.State.Terminal() {
		t.Error("Expected interrupted to be terminal")
	}
}

func TestSegmentProgress(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	id := m.Create(testAsset("a"))
	m.SetSegments(id, 12)

	j, _ := m.Get(id)
	if j.Progress.TotalKnown {
		t.Error("Expected unknown total for segment progress")
	}
	if j.Progress.Segments != 12 {
		t.Errorf("Expected 12 segments, got %d", j.Progress.Segments)
	}

	// Completing a total-unknown job must not invent a percentage.
	m.Complete(id)
	j, _ = m.Get(id)
	if j.Progress.TotalKnown || j.Progress.Percent != 0 {
		t.Errorf("Expected segment progress preserved, got %+v", j.Progress)
	}
}

func TestSnapshotOrderAndCounts(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	a := m.Create(testAsset("a"))
	b := m.Create(testAsset("b"))
	c := m.Create(testAsset("c"))

	m.Complete(a)
	m.Interrupt(b, "boom")

	jobs := m.Snapshot()
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != a || jobs[1].ID != b || jobs[2].ID != c {
		t.Error("Expected snapshot in creation order")
	}

	active, finished := m.Counts()
	if active != 1 || finished != 2 {
		t.Errorf("Expected 1 active and 2 finished, got %d and %d", active, finished)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	id := m.Create(testAsset("a"))
	jobs := m.Snapshot()
	jobs[0].State = StateComplete

	if j, _ := m.Get(id); j.State != StatePending {
		t.Error("Expected snapshot mutation to not affect the manager")
	}
}

func TestUpdateCallback(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())

	var states []State
	m.SetUpdateCallback(func(j Job) {
		states = append(states, j.State)
	})

	id := m.Create(testAsset("a"))
	m.Start(id)
	m.Complete(id)

	want := []State{StatePending, StateInProgress, StateComplete}
	if len(states) != len(want) {
		t.Fatalf("Expected %d callbacks, got %d", len(want), len(states))
	}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("Callback %d: expected %s, got %s", i, s, states[i])
		}
	}
}

func TestUpdateUnknownJobIsNoop(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())
	m.Start("no-such-job")
	m.Complete("no-such-job")

	if _, ok := m.Get("no-such-job"); ok {
		t.Error("Expected unknown job to stay unknown")
	}
}
