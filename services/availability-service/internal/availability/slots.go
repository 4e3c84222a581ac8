package availability

import "sort"

// Interval is a half-open range [Start, End) of wall clock time.
type Interval struct {
	Start WallClock `json:"start"`
	End   WallClock `json:"end"`
}

func (i Interval) Valid() bool {
	return i.Start < i.End
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Grid is the set of candidate start times for one day before occupancy is
// applied. Reason is set when Slots is empty.
type Grid struct {
	Slots  []WallClock
	Reason Reason
}

// Generate steps from the day's open time in increments of duration and
// keeps every start whose appointment ends by close.
func Generate(day DaySchedule, duration int) Grid {
	window, ok := day.Window()
	if !ok {
		return Grid{Slots: []WallClock{}, Reason: ReasonDayClosed}
	}
	if duration <= 0 || duration > int(EndOfDay) {
		return Grid{Slots: []WallClock{}, Reason: ReasonNoFittingWindow}
	}

	slots := make([]WallClock, 0, int(window.End-window.Start)/duration)
	for t := window.Start; t.Add(duration) <= window.End; t = t.Add(duration) {
		slots = append(slots, t)
	}
	if len(slots) == 0 {
		return Grid{Slots: slots, Reason: ReasonNoFittingWindow}
	}
	return Grid{Slots: slots}
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if b.Valid() && candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// withoutExempt drops occupied intervals wholly contained in exempt.
func withoutExempt(occupied []Interval, exempt *Interval) []Interval {
	if exempt == nil || !exempt.Valid() {
		return occupied
	}
	out := make([]Interval, 0, len(occupied))
	for _, o := range occupied {
		if exempt.Contains(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// FreeWindows returns the parts of the day's open window not covered by
// occupied, in ascending order.
func FreeWindows(day DaySchedule, occupied []Interval) []Interval {
	window, ok := day.Window()
	if !ok {
		return []Interval{}
	}
	busy := mergeIntervals(occupied)

	free := []Interval{window}
	for _, b := range busy {
		next := make([]Interval, 0, len(free)+1)
		for _, f := range free {
			if !f.Overlaps(b) {
				next = append(next, f)
				continue
			}
			if f.Start < b.Start {
				next = append(next, Interval{Start: f.Start, End: b.Start})
			}
			if b.End < f.End {
				next = append(next, Interval{Start: b.End, End: f.End})
			}
		}
		free = next
	}
	return free
}

func mergeIntervals(in []Interval) []Interval {
	valid := make([]Interval, 0, len(in))
	for _, i := range in {
		if i.Valid() {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return valid
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })

	merged := []Interval{valid[0]}
	for _, cur := range valid[1:] {
		last := &merged[len(merged)-1]
		if cur.Start <= last.End {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
