package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotengine/libs/db"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
)

// ScheduleRepository stores owner working hours and per-service overrides.
type ScheduleRepository struct {
	db db.Querier
}

func NewScheduleRepository(q db.Querier) *ScheduleRepository {
	return &ScheduleRepository{db: q}
}

// ServiceRecord is a catalogue entry. Duration is the raw stored text and
// Schedule holds only the weekdays the service overrides.
type ServiceRecord struct {
	ID       string
	OwnerID  string
	Name     string
	Duration string
	Schedule availability.WeeklySchedule
}

// GetWeeklySchedule returns the owner's hours. Owners without rows get an
// empty schedule, which resolves every day as closed.
func (r *ScheduleRepository) GetWeeklySchedule(ctx context.Context, ownerID string) (availability.WeeklySchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, is_open, COALESCE(open_minute, 0), COALESCE(close_minute, 0)
		FROM owner_working_hours
		WHERE owner_id = $1
		ORDER BY weekday ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ws := availability.WeeklySchedule{}
	for rows.Next() {
		var weekday, open, close int
		var isOpen bool
		if err := rows.Scan(&weekday, &isOpen, &open, &close); err != nil {
			return nil, err
		}
		ws[time.Weekday(weekday)] = dayFromRow(isOpen, open, close)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ws, nil
}

// ReplaceWeeklySchedule upserts every day in ws and removes weekdays absent
// from it.
func (r *ScheduleRepository) ReplaceWeeklySchedule(ctx context.Context, ownerID string, ws availability.WeeklySchedule) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM owner_working_hours WHERE owner_id = $1`, ownerID); err != nil {
		return err
	}
	for _, wd := range sortedWeekdays(ws) {
		isOpen, open, close := dayToRow(ws[wd])
		if _, err := tx.Exec(ctx, `
			INSERT INTO owner_working_hours (owner_id, weekday, is_open, open_minute, close_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id, weekday) DO UPDATE
			SET is_open = EXCLUDED.is_open,
				open_minute = EXCLUDED.open_minute,
				close_minute = EXCLUDED.close_minute,
				updated_at = now()
		`, ownerID, int(wd), isOpen, open, close); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetService loads one active service of ownerID with its overrides.
func (r *ScheduleRepository) GetService(ctx context.Context, ownerID, serviceID string) (ServiceRecord, error) {
	var s ServiceRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, duration
		FROM services
		WHERE owner_id = $1 AND id = $2 AND is_active
	`, ownerID, serviceID).Scan(&s.ID, &s.OwnerID, &s.Name, &s.Duration)
	if err != nil {
		return ServiceRecord{}, err
	}

	hours, err := r.serviceHours(ctx, []string{s.ID})
	if err != nil {
		return ServiceRecord{}, err
	}
	s.Schedule = hours[s.ID]
	return s, nil
}

// ListServices returns ownerID's active services ordered by id.
func (r *ScheduleRepository) ListServices(ctx context.Context, ownerID string) ([]ServiceRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, name, duration
		FROM services
		WHERE owner_id = $1 AND is_active
		ORDER BY id ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}

	var out []ServiceRecord
	for rows.Next() {
		var s ServiceRecord
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Duration); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	hours, err := r.serviceHours(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Schedule = hours[out[i].ID]
	}
	return out, nil
}

func (r *ScheduleRepository) serviceHours(ctx context.Context, serviceIDs []string) (map[string]availability.WeeklySchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT service_id, weekday, is_open, COALESCE(open_minute, 0), COALESCE(close_minute, 0)
		FROM service_working_hours
		WHERE service_id = ANY($1)
		ORDER BY service_id, weekday
	`, serviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]availability.WeeklySchedule{}
	for rows.Next() {
		var serviceID string
		var weekday, open, close int
		var isOpen bool
		if err := rows.Scan(&serviceID, &weekday, &isOpen, &open, &close); err != nil {
			return nil, err
		}
		if out[serviceID] == nil {
			out[serviceID] = availability.WeeklySchedule{}
		}
		out[serviceID][time.Weekday(weekday)] = dayFromRow(isOpen, open, close)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceServiceSchedule stores the override days of a service owned by
// ownerID. An empty schedule clears every override.
func (r *ScheduleRepository) ReplaceServiceSchedule(ctx context.Context, ownerID, serviceID string, ws availability.WeeklySchedule) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM services WHERE id = $1 AND owner_id = $2
		)
	`, serviceID, ownerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM service_working_hours WHERE service_id = $1`, serviceID); err != nil {
		return err
	}
	for _, wd := range sortedWeekdays(ws) {
		isOpen, open, close := dayToRow(ws[wd])
		if _, err := tx.Exec(ctx, `
			INSERT INTO service_working_hours (service_id, weekday, is_open, open_minute, close_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, serviceID, int(wd), isOpen, open, close); err != nil {
			return fmt.Errorf("insert %s hours: %w", wd, err)
		}
	}
	return tx.Commit(ctx)
}

func dayFromRow(isOpen bool, open, close int) availability.DaySchedule {
	if !isOpen {
		return availability.ClosedDay()
	}
	return availability.OpenDay(availability.WallClock(open), availability.WallClock(close))
}

// dayToRow returns nil minutes for closed days so the columns stay NULL.
func dayToRow(d availability.DaySchedule) (bool, *int, *int) {
	if !d.IsOpen || d.Open == nil || d.Close == nil {
		return false, nil, nil
	}
	open, close := d.Open.Minutes(), d.Close.Minutes()
	return true, &open, &close
}

func sortedWeekdays(ws availability.WeeklySchedule) []time.Weekday {
	out := make([]time.Weekday, 0, len(ws))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if _, ok := ws[wd]; ok {
			out = append(out, wd)
		}
	}
	return out
}
