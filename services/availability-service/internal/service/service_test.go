package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/storage"
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type fakeSchedules struct {
	owner       availability.WeeklySchedule
	services    map[string]storage.ServiceRecord
	ownerErr    error
	ownerCalls  int
	listOrdered []string
}

func (f *fakeSchedules) GetWeeklySchedule(context.Context, string) (availability.WeeklySchedule, error) {
	f.ownerCalls++
	return f.owner, f.ownerErr
}

func (f *fakeSchedules) GetService(_ context.Context, _ string, serviceID string) (storage.ServiceRecord, error) {
	rec, ok := f.services[serviceID]
	if !ok {
		return storage.ServiceRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeSchedules) ListServices(context.Context, string) ([]storage.ServiceRecord, error) {
	out := make([]storage.ServiceRecord, 0, len(f.listOrdered))
	for _, id := range f.listOrdered {
		out = append(out, f.services[id])
	}
	return out, nil
}

type fakeOccupancy struct {
	intervals []availability.Interval
	err       error
}

func (f *fakeOccupancy) ListOccupied(context.Context, string, time.Time) ([]availability.Interval, error) {
	return f.intervals, f.err
}

func weekdays(open, close availability.WallClock) availability.WeeklySchedule {
	ws := availability.WeeklySchedule{time.Saturday: availability.ClosedDay(), time.Sunday: availability.ClosedDay()}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		ws[wd] = availability.OpenDay(open, close)
	}
	return ws
}

func newFixture(t *testing.T, withCache bool) (*Service, *fakeSchedules, *fakeOccupancy, *metrics.Metrics) {
	t.Helper()
	schedules := &fakeSchedules{
		owner: weekdays(540, 720),
		services: map[string]storage.ServiceRecord{
			"cut":   {ID: "cut", OwnerID: "pro-1", Duration: "1h"},
			"quick": {ID: "quick", OwnerID: "pro-1", Duration: "30"},
			"odd":   {ID: "odd", OwnerID: "pro-1", Duration: "a while"},
		},
		listOrdered: []string{"cut", "quick"},
	}
	occupancy := &fakeOccupancy{}
	m := metrics.New(prometheus.NewRegistry())

	var rc ResultCache
	if withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		rc = cache.New(rdb, time.Minute, "test")
	}
	return New(schedules, occupancy, rc, m, nil, Config{DefaultDurationMinutes: 45}), schedules, occupancy, m
}

func TestSlotsForService(t *testing.T) {
	svc, _, occupancy, _ := newFixture(t, false)
	occupancy.intervals = []availability.Interval{{Start: 600, End: 630}}

	resp, err := svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday})
	require.NoError(t, err)
	assert.Equal(t, 60, resp.DurationMinutes)
	assert.Equal(t, []availability.WallClock{540, 660}, resp.Result.Slots)
	assert.Empty(t, resp.Result.UnavailableReason)
}

func TestSlotsWithoutServiceUsesRequestedDuration(t *testing.T) {
	svc, _, _, _ := newFixture(t, false)

	resp, err := svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", Date: monday, Duration: "1h 30min"})
	require.NoError(t, err)
	assert.Equal(t, 90, resp.DurationMinutes)
	assert.Equal(t, []availability.WallClock{540, 630}, resp.Result.Slots)

	resp, err = svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", Date: monday})
	require.NoError(t, err)
	assert.Equal(t, 45, resp.DurationMinutes)

	_, err = svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", Date: monday, Duration: -10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSlotsUnparseableDurationFallsBack(t *testing.T) {
	svc, _, _, _ := newFixture(t, false)

	resp, err := svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", ServiceID: "odd", Date: monday})
	require.NoError(t, err)
	assert.Equal(t, 45, resp.DurationMinutes)
	assert.Equal(t, []availability.WallClock{540, 585, 630, 675}, resp.Result.Slots)
}

func TestSlotsUnknownService(t *testing.T) {
	svc, _, _, _ := newFixture(t, false)
	_, err := svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", ServiceID: "nope", Date: monday})
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestSlotsValidation(t *testing.T) {
	svc, _, _, _ := newFixture(t, false)
	_, err := svc.Slots(context.Background(), SlotsRequest{Date: monday})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", Date: monday, Exempt: &availability.Interval{Start: 600, End: 600}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSlotsFetchFailureIsReturned(t *testing.T) {
	svc, schedules, occupancy, _ := newFixture(t, false)
	schedules.ownerErr = errors.New("db down")
	_, err := svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load working hours")

	schedules.ownerErr = nil
	occupancy.err = errors.New("timeout")
	_, err = svc.Slots(context.Background(), SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load occupancy")
}

func TestSlotsCachedUntilInvalidated(t *testing.T) {
	svc, schedules, occupancy, _ := newFixture(t, true)
	ctx := context.Background()
	req := SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday}

	first, err := svc.Slots(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	occupancy.intervals = []availability.Interval{{Start: 540, End: 600}}
	second, err := svc.Slots(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result.Slots, second.Result.Slots)
	assert.Equal(t, 1, schedules.ownerCalls)

	n, err := svc.InvalidateDay(ctx, "pro-1", monday, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	third, err := svc.Slots(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, []availability.WallClock{600, 660}, third.Result.Slots)
}

func TestSlotsWithExemptionBypassesCache(t *testing.T) {
	svc, schedules, occupancy, _ := newFixture(t, true)
	ctx := context.Background()
	own := availability.Interval{Start: 600, End: 660}
	occupancy.intervals = []availability.Interval{own}

	for i := 0; i < 2; i++ {
		resp, err := svc.Slots(ctx, SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday, Exempt: &own})
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, []availability.WallClock{540, 600, 660}, resp.Result.Slots)
	}
	assert.Equal(t, 2, schedules.ownerCalls)
}

func TestCheck(t *testing.T) {
	svc, _, occupancy, _ := newFixture(t, true)
	ctx := context.Background()
	occupancy.intervals = []availability.Interval{{Start: 600, End: 660}}
	req := SlotsRequest{ProfessionalID: "pro-1", ServiceID: "cut", Date: monday}

	ok, _, err := svc.Check(ctx, req, 540)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, res, err := svc.Check(ctx, req, 600)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []availability.WallClock{540, 660}, res.Slots)

	own := availability.Interval{Start: 600, End: 660}
	req.Exempt = &own
	ok, _, err = svc.Check(ctx, req, 600)
	require.NoError(t, err)
	assert.True(t, ok, "a rescheduled appointment may keep its own start")
}

func TestAvailabilityAndServicesAt(t *testing.T) {
	svc, _, occupancy, _ := newFixture(t, false)
	ctx := context.Background()
	occupancy.intervals = []availability.Interval{{Start: 600, End: 630}}
	req := AvailabilityRequest{ProfessionalID: "pro-1", Date: monday}

	agg, err := svc.Availability(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []availability.WallClock{540, 570, 630, 660, 690}, agg.Union)
	assert.Equal(t, []availability.WallClock{540, 660}, agg.PerService["cut"].Slots)

	ids, err := svc.ServicesAt(ctx, req, 540)
	require.NoError(t, err)
	assert.Equal(t, []string{"cut", "quick"}, ids)

	ids, err = svc.ServicesAt(ctx, req, 630)
	require.NoError(t, err)
	assert.Equal(t, []string{"quick"}, ids)
}

func queryCount(t *testing.T, reg *prometheus.Registry, kind, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "slotengine_availability_queries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] == kind && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestAvailabilityOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	schedules := &fakeSchedules{
		owner:       weekdays(540, 720),
		services:    map[string]storage.ServiceRecord{"cut": {ID: "cut", OwnerID: "pro-1", Duration: "1h"}},
		listOrdered: []string{"cut"},
	}
	svc := New(schedules, &fakeOccupancy{}, nil, metrics.New(reg), nil, Config{DefaultDurationMinutes: 45})
	ctx := context.Background()

	_, err := svc.Availability(ctx, AvailabilityRequest{ProfessionalID: "pro-1", Date: monday})
	require.NoError(t, err)
	saturday := monday.AddDate(0, 0, 5)
	agg, err := svc.Availability(ctx, AvailabilityRequest{ProfessionalID: "pro-1", Date: saturday})
	require.NoError(t, err)
	require.Empty(t, agg.Union)

	assert.Equal(t, 1.0, queryCount(t, reg, kindAvailability, outcomeAvailable))
	assert.Equal(t, 1.0, queryCount(t, reg, kindAvailability, outcomeNoneAvailable))
	assert.Zero(t, queryCount(t, reg, kindAvailability, "unavailable"))

	schedules.ownerErr = errors.New("db down")
	_, err = svc.Availability(ctx, AvailabilityRequest{ProfessionalID: "pro-1", Date: monday})
	require.Error(t, err)
	assert.Equal(t, 1.0, queryCount(t, reg, kindAvailability, outcomeError))
}

func TestDayView(t *testing.T) {
	svc, _, occupancy, _ := newFixture(t, false)
	occupancy.intervals = []availability.Interval{{Start: 600, End: 630}}

	view, err := svc.DayView(context.Background(), "pro-1", monday)
	require.NoError(t, err)
	assert.True(t, view.Day.IsOpen)
	assert.Equal(t, []availability.Interval{{Start: 540, End: 600}, {Start: 630, End: 720}}, view.FreeWindows)

	view, err = svc.DayView(context.Background(), "pro-1", monday.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, view.Day.IsOpen)
	assert.Empty(t, view.FreeWindows)
}

func TestInvalidateWithoutCacheIsNoop(t *testing.T) {
	svc, _, _, _ := newFixture(t, false)
	n, err := svc.InvalidateProfessional(context.Background(), "pro-1", "test")
	require.NoError(t, err)
	assert.Zero(t, n)
}
