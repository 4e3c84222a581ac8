package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
)

const (
	defaultPrefix = "avail"
	defaultTTL    = 5 * time.Minute
	// noService keys results computed from the owner schedule with an
	// explicit duration.
	noService = "_"
	dateKey   = "2006-01-02"
)

// ResultCache stores computed availability keyed by professional, service
// and date.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func New(rdb *redis.Client, ttl time.Duration, prefix string) *ResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &ResultCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Key identifies one cached result. DurationMinutes distinguishes results
// computed without a service.
type Key struct {
	ProfessionalID  string
	ServiceID       string
	Date            time.Time
	DurationMinutes int
}

// Key segments are query-escaped so ids never contain the separator or a
// SCAN glob metacharacter.
func (c *ResultCache) key(k Key) string {
	svc := noService + fmt.Sprint(k.DurationMinutes)
	if k.ServiceID != "" {
		svc = url.QueryEscape(k.ServiceID)
	}
	return strings.Join([]string{c.prefix, url.QueryEscape(k.ProfessionalID), k.Date.Format(dateKey), svc}, ":")
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func (c *ResultCache) pattern(segments ...string) string {
	return strings.Join(append([]string{globEscaper.Replace(c.prefix)}, segments...), ":") + ":*"
}

type entry struct {
	DurationMinutes int                 `json:"duration_minutes"`
	Result          availability.Result `json:"result"`
}

// Get returns ok=false on a miss.
func (c *ResultCache) Get(ctx context.Context, k Key) (availability.Result, int, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return availability.Result{}, 0, false, nil
	}
	if err != nil {
		return availability.Result{}, 0, false, fmt.Errorf("get availability cache: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return availability.Result{}, 0, false, fmt.Errorf("decode availability cache: %w", err)
	}
	if e.Result.Slots == nil {
		e.Result.Slots = []availability.WallClock{}
	}
	return e.Result, e.DurationMinutes, true, nil
}

func (c *ResultCache) Set(ctx context.Context, k Key, durationMinutes int, res availability.Result) error {
	raw, err := json.Marshal(entry{DurationMinutes: durationMinutes, Result: res})
	if err != nil {
		return fmt.Errorf("encode availability cache: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(k), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set availability cache: %w", err)
	}
	return nil
}

// InvalidateDay drops every cached result for the professional on date.
func (c *ResultCache) InvalidateDay(ctx context.Context, professionalID string, date time.Time) (int, error) {
	return c.deleteMatching(ctx, c.pattern(url.QueryEscape(professionalID), date.Format(dateKey)))
}

// InvalidateProfessional drops every cached result for the professional.
func (c *ResultCache) InvalidateProfessional(ctx context.Context, professionalID string) (int, error) {
	return c.deleteMatching(ctx, c.pattern(url.QueryEscape(professionalID)))
}

func (c *ResultCache) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan availability cache: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete availability cache: %w", err)
	}
	return int(n), nil
}

func (c *ResultCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
