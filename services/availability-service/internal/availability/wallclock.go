package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WallClock is a local time of day in whole minutes since midnight.
type WallClock int

const (
	Midnight  WallClock = 0
	EndOfDay  WallClock = 24 * 60
	clockText           = "HH:MM"
)

var ErrInvalidWallClock = errors.New("invalid wall clock time")

// ParseWallClock parses "HH:MM". "24:00" is accepted as end of day.
func ParseWallClock(s string) (WallClock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q (want %s)", ErrInvalidWallClock, s, clockText)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	c := WallClock(h*60 + m)
	if c > EndOfDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWallClock, s)
	}
	return c, nil
}

func (c WallClock) Add(minutes int) WallClock {
	return c + WallClock(minutes)
}

func (c WallClock) Minutes() int {
	return int(c)
}

func (c WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c WallClock) MarshalText() ([]byte, error) {
	if c < Midnight || c > EndOfDay {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidWallClock, int(c))
	}
	return []byte(c.String()), nil
}

func (c *WallClock) UnmarshalText(b []byte) error {
	v, err := ParseWallClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Clock returns a pointer to c, for optional fields.
func Clock(c WallClock) *WallClock {
	return &c
}
