package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/md-rashed-zaman/slotengine/libs/grpcx"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/service"
)

const ServiceName = "slotengine.availability.v1.AvailabilityService"

// AvailabilityServer is the internal RPC surface used by the booking flow.
// Messages are google.protobuf.Struct so callers need no generated stubs.
type AvailabilityServer interface {
	GetSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ServicesAt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type AvailabilityService interface {
	Slots(ctx context.Context, req service.SlotsRequest) (service.SlotsResponse, error)
	Availability(ctx context.Context, req service.AvailabilityRequest) (availability.Aggregate, error)
	ServicesAt(ctx context.Context, req service.AvailabilityRequest, t availability.WallClock) ([]string, error)
}

type server struct {
	svc    AvailabilityService
	logger *slog.Logger
}

func Register(grpcServer grpc.ServiceRegistrar, svc AvailabilityService, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer.RegisterService(&serviceDesc, &server{svc: svc, logger: logger})
}

func (s *server) GetSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	q, err := readQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req := service.SlotsRequest{
		ProfessionalID: q.professionalID,
		ServiceID:      stringField(in, "service_id"),
		Date:           q.date,
		Exempt:         q.exempt,
		NotBefore:      q.notBefore,
	}
	if v, ok := in.GetFields()["duration"]; ok && req.ServiceID == "" {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			req.Duration = kind.NumberValue
		case *structpb.Value_StringValue:
			req.Duration = kind.StringValue
		}
	}

	resp, err := s.svc.Slots(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, "GetSlots", err)
	}
	return structpb.NewStruct(map[string]any{
		"professional_id":    req.ProfessionalID,
		"service_id":         req.ServiceID,
		"date":               req.Date.Format(time.DateOnly),
		"duration_minutes":   resp.DurationMinutes,
		"slots":              clockList(resp.Result.Slots),
		"unavailable_reason": string(resp.Result.UnavailableReason),
	})
}

func (s *server) GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	q, err := readQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	agg, err := s.svc.Availability(ctx, q.availabilityRequest())
	if err != nil {
		return nil, s.statusError(ctx, "GetAvailability", err)
	}

	services := make(map[string]any, len(agg.PerService))
	for id, res := range agg.PerService {
		services[id] = map[string]any{
			"slots":              clockList(res.Slots),
			"unavailable_reason": string(res.UnavailableReason),
		}
	}
	return structpb.NewStruct(map[string]any{
		"professional_id": q.professionalID,
		"date":            q.date.Format(time.DateOnly),
		"slots":           clockList(agg.Union),
		"services":        services,
	})
}

func (s *server) ServicesAt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	q, err := readQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	t, err := availability.ParseWallClock(stringField(in, "time"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid time")
	}
	ids, err := s.svc.ServicesAt(ctx, q.availabilityRequest(), t)
	if err != nil {
		return nil, s.statusError(ctx, "ServicesAt", err)
	}
	sort.Strings(ids)
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return structpb.NewStruct(map[string]any{
		"professional_id": q.professionalID,
		"date":            q.date.Format(time.DateOnly),
		"time":            t.String(),
		"service_ids":     list,
	})
}

func (s *server) statusError(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrServiceNotFound):
		return status.Error(codes.NotFound, "service not found")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.ErrorContext(ctx, "grpc availability query failed",
		"method", method,
		"request_id", grpcx.RequestIDFromContext(ctx),
		"err", err,
	)
	return status.Error(codes.Unavailable, "availability data unavailable")
}

type query struct {
	professionalID string
	date           time.Time
	exempt         *availability.Interval
	notBefore      *availability.WallClock
}

func (q query) availabilityRequest() service.AvailabilityRequest {
	return service.AvailabilityRequest{
		ProfessionalID: q.professionalID,
		Date:           q.date,
		Exempt:         q.exempt,
		NotBefore:      q.notBefore,
	}
}

func readQuery(in *structpb.Struct) (query, error) {
	var q query
	q.professionalID = stringField(in, "professional_id")
	if q.professionalID == "" {
		return q, errors.New("professional_id is required")
	}
	rawDate := stringField(in, "date")
	if rawDate == "" {
		return q, errors.New("date is required")
	}
	d, err := time.Parse(time.DateOnly, rawDate)
	if err != nil {
		return q, fmt.Errorf("invalid date %q", rawDate)
	}
	q.date = d

	start, end := stringField(in, "exempt_start"), stringField(in, "exempt_end")
	if start != "" || end != "" {
		s, err1 := availability.ParseWallClock(start)
		e, err2 := availability.ParseWallClock(end)
		if err1 != nil || err2 != nil {
			return q, errors.New("exempt_start and exempt_end must both be HH:MM")
		}
		iv := availability.Interval{Start: s, End: e}
		if !iv.Valid() {
			return q, errors.New("exempt_end must be after exempt_start")
		}
		q.exempt = &iv
	}
	if raw := stringField(in, "not_before"); raw != "" {
		c, err := availability.ParseWallClock(raw)
		if err != nil {
			return q, err
		}
		q.notBefore = &c
	}
	return q, nil
}

func stringField(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

func clockList(slots []availability.WallClock) []any {
	out := make([]any, len(slots))
	for i, c := range slots {
		out[i] = c.String()
	}
	return out
}
