package availability

import "sort"

// Aggregate is the availability of every service a professional offers on
// one date.
type Aggregate struct {
	Union      []WallClock       `json:"slots"`
	PerService map[string]Result `json:"services"`
}

// AggregateServices resolves each policy against the same schedule and
// occupancy snapshot. q.ServiceID is ignored.
func AggregateServices(q Query, owner WeeklySchedule, policies []ServicePolicy, occupied []Interval) Aggregate {
	agg := Aggregate{
		Union:      []WallClock{},
		PerService: make(map[string]Result, len(policies)),
	}
	seen := map[WallClock]struct{}{}
	for _, p := range policies {
		sq := q
		sq.ServiceID = p.ServiceID
		res := Resolve(sq, owner, p, occupied)
		agg.PerService[p.ServiceID] = res
		for _, s := range res.Slots {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			agg.Union = append(agg.Union, s)
		}
	}
	sort.Slice(agg.Union, func(i, j int) bool { return agg.Union[i] < agg.Union[j] })
	return agg
}

// ServicesAvailableAt returns the IDs of services bookable at exactly t,
// sorted.
func (a Aggregate) ServicesAvailableAt(t WallClock) []string {
	ids := []string{}
	for id, res := range a.PerService {
		if res.Offers(t) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
