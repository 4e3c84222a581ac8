package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicAppointmentBooked      = "booking.appointment.booked.v1"
	TopicAppointmentCancelled   = "booking.appointment.cancelled.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"

	invalidationSource = "kafka"
)

// DefaultTopics are the booking events that change a professional's
// occupancy.
var DefaultTopics = []string{TopicAppointmentBooked, TopicAppointmentCancelled, TopicAppointmentRescheduled}

type Invalidator interface {
	InvalidateDay(ctx context.Context, professionalID string, date time.Time, source string) (int, error)
}

// appointmentEvent accepts both the booking payload (staff_id, RFC3339 start
// times) and an explicit professional_id/date pair.
type appointmentEvent struct {
	ProfessionalID    string `json:"professional_id"`
	StaffID           string `json:"staff_id"`
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	PreviousDate      string `json:"previous_date"`
	PreviousStartTime string `json:"previous_start_time"`
}

// InvalidationHandler drops cached availability for every day an
// appointment event touches.
func InvalidationHandler(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.Topic, err)
		}
		professionalID := strings.TrimSpace(evt.ProfessionalID)
		if professionalID == "" {
			professionalID = strings.TrimSpace(evt.StaffID)
		}
		if professionalID == "" {
			return errors.New("event has no professional_id or staff_id")
		}

		dates, err := evt.dates()
		if err != nil {
			return err
		}
		for _, d := range dates {
			n, err := inv.InvalidateDay(ctx, professionalID, d, invalidationSource)
			if err != nil {
				return fmt.Errorf("invalidate %s: %w", d.Format(time.DateOnly), err)
			}
			logger.Info("availability invalidated",
				"topic", msg.Topic,
				"professional_id", professionalID,
				"date", d.Format(time.DateOnly),
				"keys", n,
			)
		}
		return nil
	}
}

func (e appointmentEvent) dates() ([]time.Time, error) {
	var out []time.Time
	add := func(date, start string) error {
		d, ok, err := eventDate(date, start)
		if err != nil || !ok {
			return err
		}
		for _, existing := range out {
			if existing.Equal(d) {
				return nil
			}
		}
		out = append(out, d)
		return nil
	}
	if err := add(e.Date, e.StartTime); err != nil {
		return nil, err
	}
	if err := add(e.PreviousDate, e.PreviousStartTime); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("event has no date or start_time")
	}
	return out, nil
}

// eventDate prefers an explicit date. A start time is read in its own offset
// since occupancy is stored as local wall clock.
func eventDate(date, start string) (time.Time, bool, error) {
	date, start = strings.TrimSpace(date), strings.TrimSpace(start)
	switch {
	case date != "":
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date %q", date)
		}
		return d, true, nil
	case start != "":
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid start_time %q", start)
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true, nil
	default:
		return time.Time{}, false, nil
	}
}
