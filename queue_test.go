package deltakit

import (
	"testing"
	"time"
)

func TestPendingQueueAddAndDrain(t *testing.T) {
	q := NewPendingQueue()

	q.Add(nil) // suppressed no-ops queue nothing
	if q.Len() != 0 {
		t.Errorf("Len = %d after nil add, want 0", q.Len())
	}

	c1 := makeChange("c1", "users", "1", PriorityMedium, time.Now(), 10)
	c2 := makeChange("c2", "users", "2", PriorityMedium, time.Now(), 10)
	q.Add(&c1)
	q.Add(&c2)

	drained, dropped := q.Drain(0)
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(drained) != 2 || drained[0].ID != "c1" || drained[1].ID != "c2" {
		t.Errorf("drained = %+v", drained)
	}
	if q.Len() != 0 {
		t.Error("queue not empty after drain")
	}
}

func TestPendingQueueDrainExpiresStale(t *testing.T) {
	q := NewPendingQueue()

	stale := makeChange("stale", "users", "1", PriorityMedium, time.Now().Add(-2*time.Hour), 10)
	fresh := makeChange("fresh", "users", "2", PriorityMedium, time.Now(), 10)
	q.Add(&stale)
	q.Add(&fresh)

	drained, dropped := q.Drain(time.Hour)
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(drained) != 1 || drained[0].ID != "fresh" {
		t.Errorf("drained = %+v, want only the fresh change", drained)
	}
}

func TestPendingQueueRequeue(t *testing.T) {
	q := NewPendingQueue()

	c3 := makeChange("c3", "users", "3", PriorityMedium, time.Now(), 10)
	q.Add(&c3)

	q.Requeue([]DeltaChange{
		makeChange("c1", "users", "1", PriorityMedium, time.Now(), 10),
		makeChange("c2", "users", "2", PriorityMedium, time.Now(), 10),
	})

	drained, _ := q.Drain(0)
	wantOrder := []string{"c1", "c2", "c3"}
	if len(drained) != 3 {
		t.Fatalf("got %d changes, want 3", len(drained))
	}
	for i, want := range wantOrder {
		if drained[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, drained[i].ID, want)
		}
	}
}
