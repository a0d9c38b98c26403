package deltakit

// OptimizeDeltaOrder rearranges changes so they can be applied without
// violating referential dependencies. Changes are grouped per record
// (table plus record id), each group is ordered oldest first, and the
// groups are flushed in the registry's dependency order. Changes for
// unregistered tables keep their relative order and go last.
//
// The function is pure and idempotent: optimizing an already optimized
// slice returns the same order.
func (s *Service) OptimizeDeltaOrder(changes []DeltaChange) []DeltaChange {
	if len(changes) <= 1 {
		return changes
	}

	groups := make(map[string][]DeltaChange)
	groupsByTable := make(map[SyncableTable][]string)
	var unknown []DeltaChange

	for _, c := range changes {
		if !s.registry.Known(c.TableName) {
			unknown = append(unknown, c)
			continue
		}
		key := SnapshotID(c.TableName, c.RecordID)
		if _, seen := groups[key]; !seen {
			groupsByTable[c.TableName] = append(groupsByTable[c.TableName], key)
		}
		groups[key] = insertByTimestamp(groups[key], c)
	}

	out := make([]DeltaChange, 0, len(changes))
	for _, table := range s.registry.DependencyOrder() {
		for _, key := range groupsByTable[table] {
			out = append(out, groups[key]...)
		}
	}
	return append(out, unknown...)
}

// insertByTimestamp inserts c into group keeping ascending timestamp
// order. Equal timestamps preserve insertion order. Groups are small
// (changes to one record between syncs), so linear insertion is fine.
func insertByTimestamp(group []DeltaChange, c DeltaChange) []DeltaChange {
	i := len(group)
	for i > 0 && c.Timestamp.Before(group[i-1].Timestamp) {
		i--
	}
	group = append(group, DeltaChange{})
	copy(group[i+1:], group[i:])
	group[i] = c
	return group
}
