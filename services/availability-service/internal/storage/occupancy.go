package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotengine/libs/db"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
)

// OccupancyRepository reads a professional's commitments for a date:
// non-cancelled appointments and blocked periods.
type OccupancyRepository struct {
	db db.Querier
}

func NewOccupancyRepository(q db.Querier) *OccupancyRepository {
	return &OccupancyRepository{db: q}
}

type BlockedPeriod struct {
	ID             string
	ProfessionalID string
	Date           time.Time
	Start          availability.WallClock
	End            availability.WallClock
	Reason         string
	CreatedAt      time.Time
}

func (r *OccupancyRepository) ListOccupied(ctx context.Context, professionalID string, date time.Time) ([]availability.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_minute, end_minute
		FROM appointments
		WHERE professional_id = $1 AND appointment_date = $2 AND status <> 'cancelled'
		UNION ALL
		SELECT start_minute, end_minute
		FROM blocked_periods
		WHERE professional_id = $1 AND block_date = $2
		ORDER BY 1, 2
	`, professionalID, dateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []availability.Interval{}
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		out = append(out, availability.Interval{Start: availability.WallClock(start), End: availability.WallClock(end)})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *OccupancyRepository) CreateBlockedPeriod(ctx context.Context, b BlockedPeriod) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx, `
		INSERT INTO blocked_periods (id, professional_id, block_date, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, b.ProfessionalID, dateOnly(b.Date), b.Start.Minutes(), b.End.Minutes(), b.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *OccupancyRepository) ListBlockedPeriods(ctx context.Context, professionalID string, from, to time.Time) ([]BlockedPeriod, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, professional_id, block_date, start_minute, end_minute, reason, created_at
		FROM blocked_periods
		WHERE professional_id = $1 AND block_date BETWEEN $2 AND $3
		ORDER BY block_date ASC, start_minute ASC
	`, professionalID, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockedPeriod
	for rows.Next() {
		var b BlockedPeriod
		var start, end int
		if err := rows.Scan(&b.ID, &b.ProfessionalID, &b.Date, &start, &end, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Start, b.End = availability.WallClock(start), availability.WallClock(end)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteBlockedPeriod removes the period and returns its date so callers can
// invalidate cached availability.
func (r *OccupancyRepository) DeleteBlockedPeriod(ctx context.Context, professionalID, id string) (time.Time, error) {
	var date time.Time
	err := r.db.QueryRow(ctx, `
		DELETE FROM blocked_periods
		WHERE professional_id = $1 AND id = $2
		RETURNING block_date
	`, professionalID, id).Scan(&date)
	return date, err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
