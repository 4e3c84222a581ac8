package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrClosedDayHasTimes = errors.New("closed day must not carry open/close times")
	ErrOpenDayMissing    = errors.New("open day requires open and close times")
	ErrOpenAfterClose    = errors.New("open time must be before close time")
	ErrNotNested         = errors.New("service hours must lie within the owner's working hours")
)

// DaySchedule is the working window for one weekday.
type DaySchedule struct {
	IsOpen bool       `json:"is_open"`
	Open   *WallClock `json:"open"`
	Close  *WallClock `json:"close"`
}

func OpenDay(open, close WallClock) DaySchedule {
	return DaySchedule{IsOpen: true, Open: Clock(open), Close: Clock(close)}
}

func ClosedDay() DaySchedule {
	return DaySchedule{}
}

func (d DaySchedule) Validate() error {
	if !d.IsOpen {
		if d.Open != nil || d.Close != nil {
			return ErrClosedDayHasTimes
		}
		return nil
	}
	if d.Open == nil || d.Close == nil {
		return ErrOpenDayMissing
	}
	if *d.Open < Midnight || *d.Close > EndOfDay {
		return ErrInvalidWallClock
	}
	if *d.Open >= *d.Close {
		return fmt.Errorf("%w: %s-%s", ErrOpenAfterClose, *d.Open, *d.Close)
	}
	return nil
}

// Window returns the open interval; ok is false for closed or malformed days.
func (d DaySchedule) Window() (Interval, bool) {
	if !d.IsOpen || d.Open == nil || d.Close == nil || *d.Open >= *d.Close {
		return Interval{}, false
	}
	return Interval{Start: *d.Open, End: *d.Close}, true
}

// WeeklySchedule maps weekdays to their working window. Missing weekdays
// count as closed.
type WeeklySchedule map[time.Weekday]DaySchedule

func (w WeeklySchedule) Day(wd time.Weekday) DaySchedule {
	if d, ok := w[wd]; ok {
		return d
	}
	return ClosedDay()
}

func (w WeeklySchedule) Validate() error {
	for _, wd := range w.weekdays() {
		if err := w[wd].Validate(); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(wd.String()), err)
		}
	}
	return nil
}

func (w WeeklySchedule) weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(w))
	for wd := range w {
		days = append(days, wd)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// ValidateNested checks that every open day of service lies inside an open
// day of owner.
func ValidateNested(owner, service WeeklySchedule) error {
	for _, wd := range service.weekdays() {
		svc, ok := service[wd].Window()
		if !ok {
			continue
		}
		own, ok := owner.Day(wd).Window()
		if !ok || svc.Start < own.Start || svc.End > own.End {
			return fmt.Errorf("%s: %w", strings.ToLower(wd.String()), ErrNotNested)
		}
	}
	return nil
}

// ParseWeekday accepts full or three letter English names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (w WeeklySchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string]DaySchedule, len(w))
	for wd, d := range w {
		out[strings.ToLower(wd.String())] = d
	}
	return json.Marshal(out)
}

func (w *WeeklySchedule) UnmarshalJSON(b []byte) error {
	var raw map[string]DaySchedule
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(WeeklySchedule, len(raw))
	for name, d := range raw {
		wd, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		out[wd] = d
	}
	*w = out
	return nil
}

// ServicePolicy is a service's duration and optional per-day hours. Days
// absent from Schedule follow the owner's schedule.
type ServicePolicy struct {
	ServiceID       string
	DurationMinutes int
	Schedule        WeeklySchedule
}

// EffectiveDay picks the window a service uses on wd. The reason is set when
// the resulting day is closed. A service override never opens a day the owner
// has closed and is clipped to the owner's window.
func EffectiveDay(owner WeeklySchedule, policy ServicePolicy, wd time.Weekday) (DaySchedule, Reason) {
	ownerDay := owner.Day(wd)
	ownerWin, ownerOpen := ownerDay.Window()
	if !ownerOpen {
		return ClosedDay(), ReasonDayClosed
	}
	svc, ok := policy.Schedule[wd]
	if !ok {
		return ownerDay, ""
	}
	svcWin, svcOpen := svc.Window()
	if !svcOpen {
		return ClosedDay(), ReasonServiceNotOffered
	}
	start, end := max(svcWin.Start, ownerWin.Start), min(svcWin.End, ownerWin.End)
	if start >= end {
		return ClosedDay(), ReasonServiceNotOffered
	}
	return OpenDay(start, end), ""
}
