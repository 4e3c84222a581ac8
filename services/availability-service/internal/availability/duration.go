package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDurationMinutes is used when a stored duration cannot be parsed.
const DefaultDurationMinutes = 30

var ErrInvalidDuration = errors.New("duration must be a positive whole number of minutes")

var (
	bareMinutesRe = regexp.MustCompile(`^(\d+)$`)
	minutesRe     = regexp.MustCompile(`^(\d+)(?:m|min|mins|minute|minutes)$`)
	hoursRe       = regexp.MustCompile(`^(\d+)(?:h|hr|hrs|hour|hours)(?:(\d+)(?:m|min|mins|minute|minutes)?)?$`)
)

// DurationPolicy turns raw service durations into minutes. Strings that
// cannot be parsed resolve to DefaultMinutes and OnFallback is called with
// the raw value.
type DurationPolicy struct {
	DefaultMinutes int
	OnFallback     func(raw string)
}

func (p DurationPolicy) defaultMinutes() int {
	if p.DefaultMinutes > 0 {
		return p.DefaultMinutes
	}
	return DefaultDurationMinutes
}

// NormalizeDuration applies the zero DurationPolicy.
func NormalizeDuration(raw any) (int, error) {
	return DurationPolicy{}.Normalize(raw)
}

// Normalize accepts integers, whole floats, json.Number and strings.
// Non-positive numbers are rejected; strings never fail.
func (p DurationPolicy) Normalize(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return positive(int64(v))
	case int32:
		return positive(int64(v))
	case int64:
		return positive(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, v)
		}
		return positive(int64(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, v.String())
		}
		return positive(n)
	case string:
		return p.ParseString(v), nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidDuration, raw)
	}
}

// ParseString parses "45", "90min", "1h", "1h30", "1h30min" and the display
// form "1h 30min".
func (p DurationPolicy) ParseString(raw string) int {
	s := strings.ToLower(strings.Join(strings.Fields(raw), ""))

	minutes := 0
	if m := bareMinutesRe.FindStringSubmatch(s); m != nil {
		minutes = atoi(m[1])
	} else if m := minutesRe.FindStringSubmatch(s); m != nil {
		minutes = atoi(m[1])
	} else if m := hoursRe.FindStringSubmatch(s); m != nil {
		minutes = atoi(m[1]) * 60
		if m[2] != "" {
			minutes += atoi(m[2])
		}
	}

	if minutes <= 0 {
		if p.OnFallback != nil {
			p.OnFallback(raw)
		}
		return p.defaultMinutes()
	}
	return minutes
}

// FormatDuration renders minutes for display: "45min", "1h", "1h 30min".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0min"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dmin", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dmin", h, m)
	}
}

func positive(n int64) (int, error) {
	if n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDuration, n)
	}
	return int(n), nil
}

// atoi is only called on regexp-validated digits; overflow maps to 0 and
// therefore to the fallback.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n > math.MaxInt32 {
		return 0
	}
	return n
}
