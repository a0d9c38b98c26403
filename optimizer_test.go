package deltakit

import (
	"testing"
	"time"
)

func TestOptimizeDeltaOrderDependencyPrecedence(t *testing.T) {
	svc := newTestService(t)

	base := time.Now()
	changes := []DeltaChange{
		makeChange("logs", "usage_logs", "1", PriorityLow, base, 10),
		makeChange("card", "flashcards", "2", PriorityLow, base, 10),
		makeChange("user", "users", "3", PriorityMedium, base, 10),
	}

	got := svc.OptimizeDeltaOrder(changes)
	wantOrder := []string{"user", "card", "logs"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestOptimizeDeltaOrderIntraRecordCausal(t *testing.T) {
	svc := newTestService(t)

	base := time.Now()
	changes := []DeltaChange{
		makeChange("later", "users", "1", PriorityMedium, base.Add(time.Minute), 10),
		makeChange("earlier", "users", "1", PriorityMedium, base, 10),
	}

	got := svc.OptimizeDeltaOrder(changes)
	if got[0].ID != "earlier" || got[1].ID != "later" {
		t.Errorf("record history out of causal order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestOptimizeDeltaOrderUnknownTablesLast(t *testing.T) {
	svc := newTestService(t)

	base := time.Now()
	changes := []DeltaChange{
		makeChange("mystery", "not_registered", "1", PriorityLow, base, 10),
		makeChange("user", "users", "2", PriorityMedium, base, 10),
	}

	got := svc.OptimizeDeltaOrder(changes)
	if got[len(got)-1].ID != "mystery" {
		t.Error("unknown-table change should be appended last")
	}
}

func TestOptimizeDeltaOrderIdempotent(t *testing.T) {
	svc := newTestService(t)

	base := time.Now()
	changes := []DeltaChange{
		makeChange("c1", "usage_logs", "1", PriorityLow, base.Add(3*time.Second), 10),
		makeChange("c2", "users", "1", PriorityMedium, base.Add(2*time.Second), 10),
		makeChange("c3", "users", "1", PriorityMedium, base, 10),
		makeChange("c4", "flashcards", "9", PriorityLow, base.Add(time.Second), 10),
		makeChange("c5", "elsewhere", "1", PriorityLow, base, 10),
	}

	once := svc.OptimizeDeltaOrder(changes)
	twice := svc.OptimizeDeltaOrder(once)

	if len(once) != len(changes) || len(twice) != len(once) {
		t.Fatalf("changes dropped or duplicated: %d -> %d -> %d", len(changes), len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("position %d changed on re-optimization: %s vs %s", i, once[i].ID, twice[i].ID)
		}
	}
}

func TestOptimizeDeltaOrderPreservesAllChanges(t *testing.T) {
	svc := newTestService(t)

	base := time.Now()
	changes := []DeltaChange{
		makeChange("a", "users", "1", PriorityMedium, base, 10),
		makeChange("b", "users", "2", PriorityMedium, base, 10),
		makeChange("c", "quizzes", "3", PriorityLow, base, 10),
	}

	got := svc.OptimizeDeltaOrder(changes)
	seen := make(map[string]bool)
	for _, c := range got {
		if seen[c.ID] {
			t.Errorf("change %s duplicated", c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range changes {
		if !seen[c.ID] {
			t.Errorf("change %s dropped", c.ID)
		}
	}
}
