package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
)

const dateLayout = "2006-01-02"

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return d, nil
}

func parseOptionalClock(raw string) (*availability.WallClock, error) {
	if raw == "" {
		return nil, nil
	}
	c, err := availability.ParseWallClock(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// parseExempt requires both bounds or neither.
func parseExempt(startRaw, endRaw string) (*availability.Interval, error) {
	if startRaw == "" && endRaw == "" {
		return nil, nil
	}
	if startRaw == "" || endRaw == "" {
		return nil, errors.New("exempt_start and exempt_end must be given together")
	}
	start, err := availability.ParseWallClock(startRaw)
	if err != nil {
		return nil, err
	}
	end, err := availability.ParseWallClock(endRaw)
	if err != nil {
		return nil, err
	}
	iv := availability.Interval{Start: start, End: end}
	if !iv.Valid() {
		return nil, errors.New("exempt_end must be after exempt_start")
	}
	return &iv, nil
}
