package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotengine/libs/httpx"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/service"
)

type AvailabilityService interface {
	Slots(ctx context.Context, req service.SlotsRequest) (service.SlotsResponse, error)
	Check(ctx context.Context, req service.SlotsRequest, t availability.WallClock) (bool, availability.Result, error)
	Availability(ctx context.Context, req service.AvailabilityRequest) (availability.Aggregate, error)
	ServicesAt(ctx context.Context, req service.AvailabilityRequest, t availability.WallClock) ([]string, error)
	DayView(ctx context.Context, professionalID string, date time.Time) (service.DayView, error)
}

// PublicHandler serves the booking and reschedule screens.
type PublicHandler struct {
	svc    AvailabilityService
	logger *slog.Logger
}

func NewPublic(svc AvailabilityService, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{svc: svc, logger: logger}
}

type slotsResponse struct {
	ProfessionalID    string                   `json:"professional_id"`
	ServiceID         string                   `json:"service_id,omitempty"`
	Date              string                   `json:"date"`
	DurationMinutes   int                      `json:"duration_minutes"`
	Duration          string                   `json:"duration"`
	Slots             []availability.WallClock `json:"slots"`
	UnavailableReason availability.Reason      `json:"unavailable_reason,omitempty"`
}

// Slots: GET /api/v1/public/slots
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := slotsRequestFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.svc.Slots(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ProfessionalID:    req.ProfessionalID,
		ServiceID:         req.ServiceID,
		Date:              req.Date.Format(dateLayout),
		DurationMinutes:   resp.DurationMinutes,
		Duration:          availability.FormatDuration(resp.DurationMinutes),
		Slots:             resp.Result.Slots,
		UnavailableReason: resp.Result.UnavailableReason,
	})
}

func slotsRequestFromQuery(r *http.Request) (service.SlotsRequest, error) {
	professionalID := queryParam(r, "professional_id")
	if professionalID == "" {
		return service.SlotsRequest{}, errors.New("professional_id is required")
	}
	date, err := parseDate(queryParam(r, "date"))
	if err != nil {
		return service.SlotsRequest{}, err
	}
	exempt, err := parseExempt(queryParam(r, "exempt_start"), queryParam(r, "exempt_end"))
	if err != nil {
		return service.SlotsRequest{}, err
	}
	notBefore, err := parseOptionalClock(queryParam(r, "not_before"))
	if err != nil {
		return service.SlotsRequest{}, err
	}

	req := service.SlotsRequest{
		ProfessionalID: professionalID,
		ServiceID:      queryParam(r, "service_id"),
		Date:           date,
		Exempt:         exempt,
		NotBefore:      notBefore,
	}
	if d := queryParam(r, "duration"); d != "" && req.ServiceID == "" {
		req.Duration = d
	}
	return req, nil
}

type checkRequest struct {
	ProfessionalID string          `json:"professional_id"`
	ServiceID      string          `json:"service_id"`
	Date           string          `json:"date"`
	Start          string          `json:"start"`
	Duration       json.RawMessage `json:"duration,omitempty"`
	ExemptStart    string          `json:"exempt_start,omitempty"`
	ExemptEnd      string          `json:"exempt_end,omitempty"`
}

// Check: POST /api/v1/public/slots/check
func (h *PublicHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	body.ProfessionalID = strings.TrimSpace(body.ProfessionalID)
	if body.ProfessionalID == "" {
		http.Error(w, "professional_id is required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(strings.TrimSpace(body.Date))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := availability.ParseWallClock(body.Start)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	exempt, err := parseExempt(strings.TrimSpace(body.ExemptStart), strings.TrimSpace(body.ExemptEnd))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	duration, err := decodeDuration(body.Duration)
	if err != nil {
		http.Error(w, "invalid duration", http.StatusBadRequest)
		return
	}

	ok, res, err := h.svc.Check(r.Context(), service.SlotsRequest{
		ProfessionalID: body.ProfessionalID,
		ServiceID:      strings.TrimSpace(body.ServiceID),
		Date:           date,
		Duration:       duration,
		Exempt:         exempt,
	}, start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"bookable":           ok,
		"start":              start,
		"slots":              res.Slots,
		"unavailable_reason": res.UnavailableReason,
	})
}

// decodeDuration keeps numbers as json.Number so the normalizer can reject
// non-positive values, and passes strings through.
func decodeDuration(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case json.Number, string:
		return v, nil
	default:
		return nil, errors.New("duration must be a number or string")
	}
}

func availabilityRequestFromQuery(r *http.Request) (service.AvailabilityRequest, error) {
	professionalID := queryParam(r, "professional_id")
	if professionalID == "" {
		return service.AvailabilityRequest{}, errors.New("professional_id is required")
	}
	date, err := parseDate(queryParam(r, "date"))
	if err != nil {
		return service.AvailabilityRequest{}, err
	}
	exempt, err := parseExempt(queryParam(r, "exempt_start"), queryParam(r, "exempt_end"))
	if err != nil {
		return service.AvailabilityRequest{}, err
	}
	notBefore, err := parseOptionalClock(queryParam(r, "not_before"))
	if err != nil {
		return service.AvailabilityRequest{}, err
	}
	return service.AvailabilityRequest{ProfessionalID: professionalID, Date: date, Exempt: exempt, NotBefore: notBefore}, nil
}

type serviceAvailability struct {
	Slots             []availability.WallClock `json:"slots"`
	UnavailableReason availability.Reason      `json:"unavailable_reason,omitempty"`
}

// Availability: GET /api/v1/public/availability
func (h *PublicHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := availabilityRequestFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	agg, err := h.svc.Availability(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	perService := make(map[string]serviceAvailability, len(agg.PerService))
	for id, res := range agg.PerService {
		perService[id] = serviceAvailability{Slots: res.Slots, UnavailableReason: res.UnavailableReason}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"professional_id": req.ProfessionalID,
		"date":            req.Date.Format(dateLayout),
		"slots":           agg.Union,
		"services":        perService,
	})
}

// ServicesAt: GET /api/v1/public/availability/services
func (h *PublicHandler) ServicesAt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := availabilityRequestFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := availability.ParseWallClock(queryParam(r, "time"))
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}

	ids, err := h.svc.ServicesAt(r.Context(), req, t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"professional_id": req.ProfessionalID,
		"date":            req.Date.Format(dateLayout),
		"time":            t,
		"service_ids":     ids,
	})
}

// Day: GET /api/v1/public/day
func (h *PublicHandler) Day(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	professionalID := queryParam(r, "professional_id")
	if professionalID == "" {
		http.Error(w, "professional_id is required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(queryParam(r, "date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.DayView(r.Context(), professionalID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"professional_id": professionalID,
		"date":            date.Format(dateLayout),
		"day":             view.Day,
		"occupied":        view.Occupied,
		"free_windows":    view.FreeWindows,
	})
}

func (h *PublicHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrServiceNotFound):
		http.Error(w, "service not found", http.StatusNotFound)
	default:
		h.logger.ErrorContext(r.Context(), "availability query failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
	}
}
