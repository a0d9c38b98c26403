package deltakit

import (
	"fmt"
)

// LargeChangeThreshold is the serialized size above which a change is
// deprioritized to low regardless of table or operation, so large payloads
// cannot head-of-line block small latency-sensitive changes.
const LargeChangeThreshold = 10000

// PriorityClass is the static urgency class a syncable table belongs to.
type PriorityClass int

const (
	ClassHigh PriorityClass = iota
	ClassMedium
	ClassLow
)

func (c PriorityClass) String() string {
	switch c {
	case ClassHigh:
		return "high"
	case ClassMedium:
		return "medium"
	default:
		return "low"
	}
}

// TableRegistry holds the static priority-class membership and ordering of
// all tables eligible for sync. Class membership is configuration, not
// computed; the per-class ordering doubles as the inter-table dependency
// order (parents before dependents).
type TableRegistry struct {
	high   []SyncableTable
	medium []SyncableTable
	low    []SyncableTable
	class  map[SyncableTable]PriorityClass
}

// NewTableRegistry builds a registry from the three ordered class lists.
// A table may appear in exactly one class.
func NewTableRegistry(high, medium, low []SyncableTable) (*TableRegistry, error) {
	r := &TableRegistry{
		high:   append([]SyncableTable(nil), high...),
		medium: append([]SyncableTable(nil), medium...),
		low:    append([]SyncableTable(nil), low...),
		class:  make(map[SyncableTable]PriorityClass, len(high)+len(medium)+len(low)),
	}
	add := func(tables []SyncableTable, c PriorityClass) error {
		for _, t := range tables {
			if t == "" {
				return fmt.Errorf("empty table name in %s class", c)
			}
			if existing, ok := r.class[t]; ok {
				return fmt.Errorf("table %q registered in both %s and %s classes", t, existing, c)
			}
			r.class[t] = c
		}
		return nil
	}
	if err := add(r.high, ClassHigh); err != nil {
		return nil, err
	}
	if err := add(r.medium, ClassMedium); err != nil {
		return nil, err
	}
	if err := add(r.low, ClassLow); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultTableRegistry returns the registry for the study-aid schema this
// core was extracted from. Parent entities come before their dependents
// within each class.
func DefaultTableRegistry() *TableRegistry {
	r, err := NewTableRegistry(
		[]SyncableTable{"users", "content_items"},
		[]SyncableTable{"flashcard_sets", "flashcards", "quizzes", "quiz_questions"},
		[]SyncableTable{"study_sessions", "media_transcripts", "usage_logs"},
	)
	if err != nil {
		// The built-in lists are disjoint; a failure here is a bug.
		panic(err)
	}
	return r
}

// Class returns the priority class for table, and whether the table is known.
func (r *TableRegistry) Class(table SyncableTable) (PriorityClass, bool) {
	c, ok := r.class[table]
	return c, ok
}

// Known reports whether table is registered for sync.
func (r *TableRegistry) Known(table SyncableTable) bool {
	_, ok := r.class[table]
	return ok
}

// DeterminePriority assigns the transmission priority for a change.
// Rule order, first match wins:
//  1. changes larger than LargeChangeThreshold are low, always
//  2. HIGH-class tables are high for deletes, medium otherwise
//  3. everything else is low
func (r *TableRegistry) DeterminePriority(table SyncableTable, op Operation, changeSize int) Priority {
	if changeSize > LargeChangeThreshold {
		return PriorityLow
	}
	if c, ok := r.class[table]; ok && c == ClassHigh {
		if op == OpDelete {
			return PriorityHigh
		}
		return PriorityMedium
	}
	return PriorityLow
}

// DependencyOrder returns every registered table, HIGH class first, then
// MEDIUM, then LOW, each in its configured order. Grouped changes are
// flushed in this sequence so referentially-depended-upon tables sync
// before their dependents.
func (r *TableRegistry) DependencyOrder() []SyncableTable {
	out := make([]SyncableTable, 0, len(r.high)+len(r.medium)+len(r.low))
	out = append(out, r.high...)
	out = append(out, r.medium...)
	out = append(out, r.low...)
	return out
}
