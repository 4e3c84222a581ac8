package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute, "test"), mr
}

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func TestResultCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	k := Key{ProfessionalID: "pro-1", ServiceID: "svc-1", Date: monday}

	if _, _, ok, err := c.Get(ctx, k); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	res := availability.Result{Slots: []availability.WallClock{540, 600}}
	if err := c.Set(ctx, k, 60, res); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, duration, ok, err := c.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if duration != 60 || len(got.Slots) != 2 || got.Slots[1].String() != "10:00" {
		t.Fatalf("unexpected cached value %+v (%d)", got, duration)
	}

	if ttl := mr.TTL("test:pro-1:2024-03-04:svc-1"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, _, ok, _ := c.Get(ctx, k); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestResultCacheKeepsReason(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	k := Key{ProfessionalID: "pro-1", Date: monday, DurationMinutes: 45}

	if err := c.Set(ctx, k, 45, availability.Result{Slots: []availability.WallClock{}, UnavailableReason: availability.ReasonDayClosed}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _, ok, err := c.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.UnavailableReason != availability.ReasonDayClosed || got.Slots == nil {
		t.Fatalf("unexpected cached result %+v", got)
	}
}

func TestInvalidateDay(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	tuesday := monday.AddDate(0, 0, 1)
	res := availability.Result{Slots: []availability.WallClock{540}}

	for _, k := range []Key{
		{ProfessionalID: "pro-1", ServiceID: "a", Date: monday},
		{ProfessionalID: "pro-1", ServiceID: "b", Date: monday},
		{ProfessionalID: "pro-1", ServiceID: "a", Date: tuesday},
		{ProfessionalID: "pro-2", ServiceID: "a", Date: monday},
	} {
		if err := c.Set(ctx, k, 30, res); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	n, err := c.InvalidateDay(ctx, "pro-1", monday)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deletions, got %d (%v)", n, err)
	}
	if !mr.Exists("test:pro-1:2024-03-05:a") || !mr.Exists("test:pro-2:2024-03-04:a") {
		t.Fatalf("unrelated keys must survive")
	}

	n, err = c.InvalidateProfessional(ctx, "pro-1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deletion, got %d (%v)", n, err)
	}
	if !mr.Exists("test:pro-2:2024-03-04:a") {
		t.Fatalf("other professional must survive")
	}
}

func TestInvalidateEscapesIDs(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	res := availability.Result{Slots: []availability.WallClock{540}}

	for _, k := range []Key{
		{ProfessionalID: "pro[1]", ServiceID: "svc*", Date: monday},
		{ProfessionalID: "a", ServiceID: "x", Date: monday},
		{ProfessionalID: "a:b", ServiceID: "x", Date: monday},
	} {
		if err := c.Set(ctx, k, 30, res); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	n, err := c.InvalidateDay(ctx, "pro[1]", monday)
	if err != nil || n != 1 {
		t.Fatalf("expected bracketed id to be invalidated, got %d (%v)", n, err)
	}
	if _, _, ok, _ := c.Get(ctx, Key{ProfessionalID: "pro[1]", ServiceID: "svc*", Date: monday}); ok {
		t.Fatalf("expected miss after invalidation")
	}

	n, err = c.InvalidateProfessional(ctx, "a")
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one deletion for a, got %d (%v)", n, err)
	}
	if !mr.Exists("test:a%3Ab:2024-03-04:x") {
		t.Fatalf("entry of a:b must survive invalidating a, keys: %v", mr.Keys())
	}
	if _, _, ok, _ := c.Get(ctx, Key{ProfessionalID: "a:b", ServiceID: "x", Date: monday}); !ok {
		t.Fatalf("expected a:b entry to remain cached")
	}
}

func TestInvalidateWithGlobPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	starred, plain := New(rdb, time.Minute, "av*"), New(rdb, time.Minute, "avx")
	k := Key{ProfessionalID: "pro-1", ServiceID: "svc-1", Date: monday}

	for _, c := range []*ResultCache{starred, plain} {
		if err := c.Set(ctx, k, 30, availability.Result{Slots: []availability.WallClock{540}}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	n, err := starred.InvalidateProfessional(ctx, "pro-1")
	if err != nil || n != 1 {
		t.Fatalf("expected one deletion, got %d (%v)", n, err)
	}
	if !mr.Exists("avx:pro-1:2024-03-04:svc-1") {
		t.Fatalf("prefix glob must not match other prefixes")
	}
}
