package util

import "time"

// SameDay reports whether a and b fall on the same calendar day in loc.
// Used by the broker session to decide when the start-of-day balance must be
// resampled.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
