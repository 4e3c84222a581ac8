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
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/storage"
)

const invalidationSource = "api"

type ScheduleStore interface {
	GetWeeklySchedule(ctx context.Context, ownerID string) (availability.WeeklySchedule, error)
	ReplaceWeeklySchedule(ctx context.Context, ownerID string, ws availability.WeeklySchedule) error
	GetService(ctx context.Context, ownerID, serviceID string) (storage.ServiceRecord, error)
	ReplaceServiceSchedule(ctx context.Context, ownerID, serviceID string, ws availability.WeeklySchedule) error
	ListServices(ctx context.Context, ownerID string) ([]storage.ServiceRecord, error)
}

type BlockedPeriodStore interface {
	CreateBlockedPeriod(ctx context.Context, b storage.BlockedPeriod) (string, error)
	ListBlockedPeriods(ctx context.Context, professionalID string, from, to time.Time) ([]storage.BlockedPeriod, error)
	DeleteBlockedPeriod(ctx context.Context, professionalID, id string) (time.Time, error)
}

type Invalidator interface {
	InvalidateDay(ctx context.Context, professionalID string, date time.Time, source string) (int, error)
	InvalidateProfessional(ctx context.Context, professionalID, source string) (int, error)
}

// ScheduleHandler edits working hours, service hours and blocked periods.
// Every route expects owner_id in the query string.
type ScheduleHandler struct {
	schedules ScheduleStore
	blocked   BlockedPeriodStore
	inv       Invalidator
	logger    *slog.Logger
}

func NewSchedules(schedules ScheduleStore, blocked BlockedPeriodStore, inv Invalidator, logger *slog.Logger) *ScheduleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleHandler{schedules: schedules, blocked: blocked, inv: inv, logger: logger}
}

type scheduleBody struct {
	Days availability.WeeklySchedule `json:"days"`
}

func (h *ScheduleHandler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := queryParam(r, "owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.schedules.GetWeeklySchedule(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load working hours failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to load working hours", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"owner_id": ownerID, "days": ws})
}

// PutWorkingHours replaces the owner's week. Hours that would leave an existing
// service override outside the owner's window are rejected.
func (h *ScheduleHandler) PutWorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := queryParam(r, "owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := body.Days.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	services, err := h.schedules.ListServices(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list services failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to load services", http.StatusInternalServerError)
		return
	}
	for _, svc := range services {
		if err := availability.ValidateNested(body.Days, svc.Schedule); err != nil {
			http.Error(w, "service "+svc.ID+": "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	if err := h.schedules.ReplaceWeeklySchedule(r.Context(), ownerID, body.Days); err != nil {
		h.logger.ErrorContext(r.Context(), "save working hours failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to save working hours", http.StatusInternalServerError)
		return
	}
	h.invalidateProfessional(r.Context(), ownerID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) GetServiceHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, serviceID := queryParam(r, "owner_id"), queryParam(r, "service_id")
	if ownerID == "" || serviceID == "" {
		http.Error(w, "owner_id and service_id are required", http.StatusBadRequest)
		return
	}

	rec, err := h.schedules.GetService(r.Context(), ownerID, serviceID)
	if storage.IsNotFound(err) {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load service failed", "service_id", serviceID, "err", err)
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}
	days := rec.Schedule
	if days == nil {
		days = availability.WeeklySchedule{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"owner_id":   ownerID,
		"service_id": rec.ID,
		"name":       rec.Name,
		"duration":   rec.Duration,
		"days":       days,
	})
}

// PutServiceHours replaces a service's override days. Open days must sit
// inside the owner's working hours.
func (h *ScheduleHandler) PutServiceHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, serviceID := queryParam(r, "owner_id"), queryParam(r, "service_id")
	if ownerID == "" || serviceID == "" {
		http.Error(w, "owner_id and service_id are required", http.StatusBadRequest)
		return
	}

	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := body.Days.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	owner, err := h.schedules.GetWeeklySchedule(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load working hours failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to load working hours", http.StatusInternalServerError)
		return
	}
	if err := availability.ValidateNested(owner, body.Days); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err = h.schedules.ReplaceServiceSchedule(r.Context(), ownerID, serviceID, body.Days)
	if storage.IsNotFound(err) {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "save service hours failed", "service_id", serviceID, "err", err)
		http.Error(w, "failed to save service hours", http.StatusInternalServerError)
		return
	}
	h.invalidateProfessional(r.Context(), ownerID)
	w.WriteHeader(http.StatusNoContent)
}

type blockedPeriodItem struct {
	ID     string                 `json:"id"`
	Date   string                 `json:"date"`
	Start  availability.WallClock `json:"start"`
	End    availability.WallClock `json:"end"`
	Reason string                 `json:"reason"`
}

func (h *ScheduleHandler) CreateBlockedPeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := queryParam(r, "owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Date   string                 `json:"date"`
		Start  availability.WallClock `json:"start"`
		End    availability.WallClock `json:"end"`
		Reason string                 `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := parseDate(strings.TrimSpace(body.Date))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Start >= body.End {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	id, err := h.blocked.CreateBlockedPeriod(r.Context(), storage.BlockedPeriod{
		ProfessionalID: ownerID,
		Date:           date,
		Start:          body.Start,
		End:            body.End,
		Reason:         strings.TrimSpace(body.Reason),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create blocked period failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to create blocked period", http.StatusInternalServerError)
		return
	}
	h.invalidateDay(r.Context(), ownerID, date)
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *ScheduleHandler) ListBlockedPeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := queryParam(r, "owner_id")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	from, err := parseDate(queryParam(r, "from"))
	if err != nil {
		http.Error(w, "from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to := from
	if raw := queryParam(r, "to"); raw != "" {
		if to, err = parseDate(raw); err != nil {
			http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	periods, err := h.blocked.ListBlockedPeriods(r.Context(), ownerID, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list blocked periods failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to list blocked periods", http.StatusInternalServerError)
		return
	}
	items := make([]blockedPeriodItem, 0, len(periods))
	for _, p := range periods {
		items = append(items, blockedPeriodItem{
			ID:     p.ID,
			Date:   p.Date.Format(dateLayout),
			Start:  p.Start,
			End:    p.End,
			Reason: p.Reason,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ScheduleHandler) DeleteBlockedPeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, id := queryParam(r, "owner_id"), queryParam(r, "id")
	if ownerID == "" || id == "" {
		http.Error(w, "owner_id and id are required", http.StatusBadRequest)
		return
	}

	date, err := h.blocked.DeleteBlockedPeriod(r.Context(), ownerID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "blocked period not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "delete blocked period failed", "id", id, "err", err)
		http.Error(w, "failed to delete blocked period", http.StatusInternalServerError)
		return
	}
	h.invalidateDay(r.Context(), ownerID, date)
	w.WriteHeader(http.StatusNoContent)
}

// Cache invalidation failures only delay freshness until the TTL expires.
func (h *ScheduleHandler) invalidateDay(ctx context.Context, ownerID string, date time.Time) {
	if h.inv == nil {
		return
	}
	if _, err := h.inv.InvalidateDay(ctx, ownerID, date, invalidationSource); err != nil {
		h.logger.WarnContext(ctx, "availability cache invalidation failed", "owner_id", ownerID, "err", err)
	}
}

func (h *ScheduleHandler) invalidateProfessional(ctx context.Context, ownerID string) {
	if h.inv == nil {
		return
	}
	if _, err := h.inv.InvalidateProfessional(ctx, ownerID, invalidationSource); err != nil {
		h.logger.WarnContext(ctx, "availability cache invalidation failed", "owner_id", ownerID, "err", err)
	}
}
