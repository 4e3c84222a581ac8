package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/storage"
)

var tracer = otel.Tracer("slotengine.availability.service")

var (
	ErrInvalidRequest  = errors.New("invalid availability request")
	ErrServiceNotFound = errors.New("service not found")
)

const (
	kindSlots        = "slots"
	kindAvailability = "availability"
	kindCheck        = "check"

	outcomeAvailable = "available"
	outcomeError     = "error"

	// Aggregate in which no service has a slot.
	outcomeNoneAvailable = "none_available"
)

type ScheduleStore interface {
	GetWeeklySchedule(ctx context.Context, ownerID string) (availability.WeeklySchedule, error)
	GetService(ctx context.Context, ownerID, serviceID string) (storage.ServiceRecord, error)
	ListServices(ctx context.Context, ownerID string) ([]storage.ServiceRecord, error)
}

type OccupancyStore interface {
	ListOccupied(ctx context.Context, professionalID string, date time.Time) ([]availability.Interval, error)
}

type ResultCache interface {
	Get(ctx context.Context, k cache.Key) (availability.Result, int, bool, error)
	Set(ctx context.Context, k cache.Key, durationMinutes int, res availability.Result) error
	InvalidateDay(ctx context.Context, professionalID string, date time.Time) (int, error)
	InvalidateProfessional(ctx context.Context, professionalID string) (int, error)
}

type Config struct {
	// DefaultDurationMinutes replaces durations that cannot be parsed.
	DefaultDurationMinutes int
}

// Service fetches schedules and occupancy and runs the availability engine
// over them. Results without a reschedule exemption or cut-off are cached
// when a cache is configured.
type Service struct {
	schedules ScheduleStore
	occupancy OccupancyStore
	cache     ResultCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

func New(schedules ScheduleStore, occupancy OccupancyStore, rc ResultCache, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = availability.DefaultDurationMinutes
	}
	return &Service{
		schedules: schedules,
		occupancy: occupancy,
		cache:     rc,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// SlotsRequest asks for one service's slots. Without ServiceID the owner's
// schedule is used with Duration (raw minutes or text; nil means default).
type SlotsRequest struct {
	ProfessionalID string
	ServiceID      string
	Date           time.Time
	Duration       any
	Exempt         *availability.Interval
	NotBefore      *availability.WallClock
}

type SlotsResponse struct {
	DurationMinutes int
	Result          availability.Result
	Cached          bool
}

type AvailabilityRequest struct {
	ProfessionalID string
	Date           time.Time
	Exempt         *availability.Interval
	NotBefore      *availability.WallClock
}

// DayView is the effective owner day with what is left of it.
type DayView struct {
	Day         availability.DaySchedule
	Occupied    []availability.Interval
	FreeWindows []availability.Interval
}

func (s *Service) Slots(ctx context.Context, req SlotsRequest) (SlotsResponse, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "availability.slots", trace.WithAttributes(
		attribute.String("professional_id", req.ProfessionalID),
		attribute.String("service_id", req.ServiceID),
		attribute.String("date", req.Date.Format(time.DateOnly)),
	))
	defer span.End()

	resp, err := s.slots(ctx, req, true)
	s.observe(span, kindSlots, resp.Result, err, start)
	return resp, err
}

// Check reports whether t is bookable for req, always from fresh data.
func (s *Service) Check(ctx context.Context, req SlotsRequest, t availability.WallClock) (bool, availability.Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "availability.check", trace.WithAttributes(
		attribute.String("professional_id", req.ProfessionalID),
		attribute.String("service_id", req.ServiceID),
		attribute.String("start", t.String()),
	))
	defer span.End()

	resp, err := s.slots(ctx, req, false)
	s.observe(span, kindCheck, resp.Result, err, start)
	if err != nil {
		return false, availability.Result{}, err
	}
	return resp.Result.Offers(t), resp.Result, nil
}

func (s *Service) slots(ctx context.Context, req SlotsRequest, useCache bool) (SlotsResponse, error) {
	if err := validate(req.ProfessionalID, req.Date, req.Exempt); err != nil {
		return SlotsResponse{}, err
	}

	var (
		policy availability.ServicePolicy
		err    error
	)
	if req.ServiceID == "" {
		policy.DurationMinutes, err = s.requestDuration(ctx, req.Duration)
		if err != nil {
			return SlotsResponse{}, err
		}
	}

	key := cache.Key{ProfessionalID: req.ProfessionalID, ServiceID: req.ServiceID, Date: req.Date, DurationMinutes: policy.DurationMinutes}
	cacheable := useCache && s.cache != nil && req.Exempt == nil && req.NotBefore == nil
	if cacheable {
		res, duration, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.ObserveCache("error")
			s.logger.WarnContext(ctx, "availability cache read failed", "err", err)
		case ok:
			s.metrics.ObserveCache("hit")
			return SlotsResponse{DurationMinutes: duration, Result: res, Cached: true}, nil
		default:
			s.metrics.ObserveCache("miss")
		}
	}

	owner, err := s.schedules.GetWeeklySchedule(ctx, req.ProfessionalID)
	if err != nil {
		return SlotsResponse{}, fmt.Errorf("load working hours: %w", err)
	}
	if req.ServiceID != "" {
		rec, err := s.schedules.GetService(ctx, req.ProfessionalID, req.ServiceID)
		if storage.IsNotFound(err) {
			return SlotsResponse{}, fmt.Errorf("%w: %s", ErrServiceNotFound, req.ServiceID)
		}
		if err != nil {
			return SlotsResponse{}, fmt.Errorf("load service: %w", err)
		}
		policy = s.policyFor(ctx, rec)
	}
	occupied, err := s.occupancy.ListOccupied(ctx, req.ProfessionalID, req.Date)
	if err != nil {
		return SlotsResponse{}, fmt.Errorf("load occupancy: %w", err)
	}

	res := availability.Resolve(availability.Query{
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		Date:           req.Date,
		Exempt:         req.Exempt,
		NotBefore:      req.NotBefore,
	}, owner, policy, occupied)

	if cacheable {
		if err := s.cache.Set(ctx, key, policy.DurationMinutes, res); err != nil {
			s.logger.WarnContext(ctx, "availability cache write failed", "err", err)
		}
	}
	return SlotsResponse{DurationMinutes: policy.DurationMinutes, Result: res}, nil
}

// Availability resolves every active service of the professional on one
// date.
func (s *Service) Availability(ctx context.Context, req AvailabilityRequest) (availability.Aggregate, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "availability.aggregate", trace.WithAttributes(
		attribute.String("professional_id", req.ProfessionalID),
		attribute.String("date", req.Date.Format(time.DateOnly)),
	))
	defer span.End()

	agg, err := s.aggregate(ctx, req)
	outcome := outcomeAvailable
	if len(agg.Union) == 0 {
		outcome = outcomeNoneAvailable
	}
	s.record(span, kindAvailability, outcome, len(agg.Union), err, start)
	return agg, err
}

func (s *Service) aggregate(ctx context.Context, req AvailabilityRequest) (availability.Aggregate, error) {
	if err := validate(req.ProfessionalID, req.Date, req.Exempt); err != nil {
		return availability.Aggregate{}, err
	}
	owner, err := s.schedules.GetWeeklySchedule(ctx, req.ProfessionalID)
	if err != nil {
		return availability.Aggregate{}, fmt.Errorf("load working hours: %w", err)
	}
	records, err := s.schedules.ListServices(ctx, req.ProfessionalID)
	if err != nil {
		return availability.Aggregate{}, fmt.Errorf("load services: %w", err)
	}
	occupied, err := s.occupancy.ListOccupied(ctx, req.ProfessionalID, req.Date)
	if err != nil {
		return availability.Aggregate{}, fmt.Errorf("load occupancy: %w", err)
	}

	policies := make([]availability.ServicePolicy, 0, len(records))
	for _, rec := range records {
		policies = append(policies, s.policyFor(ctx, rec))
	}
	return availability.AggregateServices(availability.Query{
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		Exempt:         req.Exempt,
		NotBefore:      req.NotBefore,
	}, owner, policies, occupied), nil
}

// ServicesAt lists the services bookable at exactly t.
func (s *Service) ServicesAt(ctx context.Context, req AvailabilityRequest, t availability.WallClock) ([]string, error) {
	agg, err := s.Availability(ctx, req)
	if err != nil {
		return nil, err
	}
	return agg.ServicesAvailableAt(t), nil
}

func (s *Service) DayView(ctx context.Context, professionalID string, date time.Time) (DayView, error) {
	ctx, span := tracer.Start(ctx, "availability.day_view")
	defer span.End()

	if err := validate(professionalID, date, nil); err != nil {
		return DayView{}, err
	}
	owner, err := s.schedules.GetWeeklySchedule(ctx, professionalID)
	if err != nil {
		span.RecordError(err)
		return DayView{}, fmt.Errorf("load working hours: %w", err)
	}
	occupied, err := s.occupancy.ListOccupied(ctx, professionalID, date)
	if err != nil {
		span.RecordError(err)
		return DayView{}, fmt.Errorf("load occupancy: %w", err)
	}
	day := owner.Day(date.Weekday())
	return DayView{
		Day:         day,
		Occupied:    occupied,
		FreeWindows: availability.FreeWindows(day, occupied),
	}, nil
}

// InvalidateDay drops cached results for one professional and date.
func (s *Service) InvalidateDay(ctx context.Context, professionalID string, date time.Time, source string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.InvalidateDay(ctx, professionalID, date)
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveInvalidation(source, n)
	s.logger.DebugContext(ctx, "availability cache invalidated", "professional_id", professionalID, "date", date.Format(time.DateOnly), "source", source, "keys", n)
	return n, nil
}

// InvalidateProfessional drops every cached result for the professional,
// used after working hours or service hours change.
func (s *Service) InvalidateProfessional(ctx context.Context, professionalID, source string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.InvalidateProfessional(ctx, professionalID)
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveInvalidation(source, n)
	return n, nil
}

func (s *Service) policyFor(ctx context.Context, rec storage.ServiceRecord) availability.ServicePolicy {
	dp := availability.DurationPolicy{
		DefaultMinutes: s.cfg.DefaultDurationMinutes,
		OnFallback: func(raw string) {
			s.metrics.ObserveDurationFallback()
			s.logger.WarnContext(ctx, "unparseable service duration, using default",
				"service_id", rec.ID,
				"raw", raw,
				"default_minutes", s.cfg.DefaultDurationMinutes,
			)
		},
	}
	// Strings never fail to normalize.
	minutes, _ := dp.Normalize(rec.Duration)
	return availability.ServicePolicy{
		ServiceID:       rec.ID,
		DurationMinutes: minutes,
		Schedule:        rec.Schedule,
	}
}

func (s *Service) requestDuration(ctx context.Context, raw any) (int, error) {
	if raw == nil {
		return s.cfg.DefaultDurationMinutes, nil
	}
	if str, ok := raw.(string); ok && str == "" {
		return s.cfg.DefaultDurationMinutes, nil
	}
	dp := availability.DurationPolicy{
		DefaultMinutes: s.cfg.DefaultDurationMinutes,
		OnFallback: func(raw string) {
			s.metrics.ObserveDurationFallback()
			s.logger.WarnContext(ctx, "unparseable requested duration, using default", "raw", raw)
		},
	}
	minutes, err := dp.Normalize(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return minutes, nil
}

// observe labels a single-service query with its unavailable reason.
func (s *Service) observe(span trace.Span, kind string, res availability.Result, err error, start time.Time) {
	outcome := outcomeAvailable
	if res.UnavailableReason != "" {
		outcome = string(res.UnavailableReason)
	}
	s.record(span, kind, outcome, len(res.Slots), err, start)
}

func (s *Service) record(span trace.Span, kind, outcome string, slots int, err error, start time.Time) {
	if err != nil {
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int("slots", slots))
	s.metrics.ObserveQuery(kind, outcome, time.Since(start).Seconds())
}

func validate(professionalID string, date time.Time, exempt *availability.Interval) error {
	if professionalID == "" {
		return fmt.Errorf("%w: professional id is required", ErrInvalidRequest)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if exempt != nil && !exempt.Valid() {
		return fmt.Errorf("%w: exempt interval must end after it starts", ErrInvalidRequest)
	}
	return nil
}
