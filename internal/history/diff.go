package history

import (
	"reflect"
	"time"
)

// ComputeDiff produces the forward delta between two snapshots. Every field
// of the new snapshot is reported when it is absent from the old snapshot
// (old recorded as nil) or its value differs. Fields present only in the
// old snapshot are not reported; delete tombstones store the old snapshot
// verbatim instead of going through here.
func ComputeDiff(oldValues, newValues map[string]any) map[string]FieldDelta {
	diff := make(map[string]FieldDelta)
	for field, newVal := range newValues {
		oldVal, ok := oldValues[field]
		if !ok {
			diff[field] = FieldDelta{Old: nil, New: newVal}
			continue
		}
		if !valuesEqual(oldVal, newVal) {
			diff[field] = FieldDelta{Old: oldVal, New: newVal}
		}
	}
	return diff
}

// valuesEqual compares semantic values. Timestamps compare with Equal so
// the same instant in different locations is not a change.
func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}
