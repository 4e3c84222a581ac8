package availability

import (
	"sort"
	"time"
)

// Reason explains an empty Result.
type Reason string

const (
	ReasonDayClosed         Reason = "DAY_CLOSED"
	ReasonServiceNotOffered Reason = "SERVICE_NOT_OFFERED_THIS_DAY"
	ReasonAllSlotsTaken     Reason = "ALL_SLOTS_TAKEN"
	ReasonNoFittingWindow   Reason = "NO_FITTING_WINDOW"
)

// Query identifies the day being resolved. Exempt is the appointment being
// rescheduled; NotBefore hides starts earlier than the given time.
type Query struct {
	ProfessionalID string
	ServiceID      string
	Date           time.Time
	Exempt         *Interval
	NotBefore      *WallClock
}

// Result holds bookable starts in ascending order. UnavailableReason is set
// exactly when Slots is empty.
type Result struct {
	Slots             []WallClock `json:"slots"`
	UnavailableReason Reason      `json:"unavailable_reason,omitempty"`
}

func (r Result) Available() bool {
	return len(r.Slots) > 0
}

// Offers reports whether t is one of the bookable starts.
func (r Result) Offers(t WallClock) bool {
	i := sort.Search(len(r.Slots), func(i int) bool { return r.Slots[i] >= t })
	return i < len(r.Slots) && r.Slots[i] == t
}

func unavailable(reason Reason) Result {
	return Result{Slots: []WallClock{}, UnavailableReason: reason}
}

// Resolve computes the bookable starts for q.Date. occupied holds the
// professional's appointments and blocked periods for that date.
func Resolve(q Query, owner WeeklySchedule, policy ServicePolicy, occupied []Interval) Result {
	day, reason := EffectiveDay(owner, policy, q.Date.Weekday())
	if reason != "" {
		return unavailable(reason)
	}

	grid := Generate(day, policy.DurationMinutes)
	if len(grid.Slots) == 0 {
		return unavailable(grid.Reason)
	}

	busy := withoutExempt(occupied, q.Exempt)
	slots := make([]WallClock, 0, len(grid.Slots))
	for _, t := range grid.Slots {
		if q.NotBefore != nil && t < *q.NotBefore {
			continue
		}
		if overlapsAny(Interval{Start: t, End: t.Add(policy.DurationMinutes)}, busy) {
			continue
		}
		slots = append(slots, t)
	}
	if len(slots) == 0 {
		return unavailable(ReasonAllSlotsTaken)
	}
	return Result{Slots: slots}
}
