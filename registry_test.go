package deltakit

import "testing"

func TestDeterminePriority(t *testing.T) {
	registry := DefaultTableRegistry()

	tests := []struct {
		name  string
		table SyncableTable
		op    Operation
		size  int
		want  Priority
	}{
		{"high table delete", "users", OpDelete, 100, PriorityHigh},
		{"high table update", "users", OpUpdate, 100, PriorityMedium},
		{"high table insert", "content_items", OpInsert, 100, PriorityMedium},
		{"medium table update", "flashcards", OpUpdate, 100, PriorityLow},
		{"low table insert", "usage_logs", OpInsert, 100, PriorityLow},
		{"unknown table", "unknown", OpDelete, 100, PriorityLow},
		{"oversized high table delete", "users", OpDelete, LargeChangeThreshold + 1, PriorityLow},
		{"exactly at threshold", "users", OpDelete, LargeChangeThreshold, PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.DeterminePriority(tt.table, tt.op, tt.size); got != tt.want {
				t.Errorf("DeterminePriority(%s, %s, %d) = %s, want %s", tt.table, tt.op, tt.size, got, tt.want)
			}
		})
	}
}

func TestNewTableRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewTableRegistry(
		[]SyncableTable{"users"},
		[]SyncableTable{"users"},
		nil,
	)
	if err == nil {
		t.Fatal("expected error for table in two classes")
	}
}

func TestNewTableRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewTableRegistry([]SyncableTable{""}, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty table name")
	}
}

func TestDependencyOrder(t *testing.T) {
	registry, err := NewTableRegistry(
		[]SyncableTable{"a", "b"},
		[]SyncableTable{"c"},
		[]SyncableTable{"d", "e"},
	)
	if err != nil {
		t.Fatal(err)
	}

	got := registry.DependencyOrder()
	want := []SyncableTable{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %d tables, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestClassLookup(t *testing.T) {
	registry := DefaultTableRegistry()

	if c, ok := registry.Class("users"); !ok || c != ClassHigh {
		t.Errorf("users: got (%v, %v), want (ClassHigh, true)", c, ok)
	}
	if c, ok := registry.Class("flashcards"); !ok || c != ClassMedium {
		t.Errorf("flashcards: got (%v, %v), want (ClassMedium, true)", c, ok)
	}
	if _, ok := registry.Class("nope"); ok {
		t.Error("unknown table reported as known")
	}
	if registry.Known("nope") {
		t.Error("Known returned true for unregistered table")
	}
}
