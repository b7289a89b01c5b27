package event

import (
	"fmt"
	"time"
)

// DateRange bounds a performance query. Nil bounds are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

// Validate rejects a range whose start is after its end.
func (r DateRange) Validate() error {
	if r.Start != nil && r.End != nil && r.Start.After(*r.End) {
		return fmt.Errorf("start %s is after end %s",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Resolve fills an open end with asOf when any bound was requested.
// An empty range stays empty (whole history).
func (r DateRange) Resolve(asOf time.Time) DateRange {
	if r.IsZero() {
		return r
	}
	out := r
	if out.End == nil {
		end := asOf
		out.End = &end
	}
	return out
}

// Includes reports whether t is on or before the end bound.
// The start bound never excludes trades: earlier buys form the opening lots.
func (r DateRange) Includes(t time.Time) bool {
	return r.End == nil || !t.After(*r.End)
}

// InWindow reports whether t lies inside [Start, End].
func (r DateRange) InWindow(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	return r.Includes(t)
}
