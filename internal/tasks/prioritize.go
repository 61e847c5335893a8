package tasks

import (
	"cmp"
	"slices"
)

// Prioritize returns a new slice ordered for display: running tasks first,
// then by descending priority, with failed and completed tasks pushed to the
// end. The sort is stable and the input is not modified.
//
// The agent loop does not use this ordering; it always executes the first
// pending task in insertion order.
func Prioritize(ts []Task) []Task {
	out := slices.Clone(ts)
	slices.SortStableFunc(out, func(a, b Task) int {
		if c := cmp.Compare(flag(a.Status == StatusCompleted), flag(b.Status == StatusCompleted)); c != 0 {
			return c
		}
		if c := cmp.Compare(flag(a.Status == StatusFailed), flag(b.Status == StatusFailed)); c != 0 {
			return c
		}
		if c := cmp.Compare(flag(a.Status != StatusRunning), flag(b.Status != StatusRunning)); c != 0 {
			return c
		}
		return cmp.Compare(b.Priority.Value(), a.Priority.Value())
	})
	return out
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
