package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotengine/services/availability-service/internal/service"
)

type fakeAvailability struct {
	lastSlots  service.SlotsRequest
	lastCheck  availability.WallClock
	slotsResp  service.SlotsResponse
	aggregate  availability.Aggregate
	servicesAt []string
	dayView    service.DayView
	err        error
}

func (f *fakeAvailability) Slots(_ context.Context, req service.SlotsRequest) (service.SlotsResponse, error) {
	f.lastSlots = req
	return f.slotsResp, f.err
}

func (f *fakeAvailability) Check(_ context.Context, req service.SlotsRequest, t availability.WallClock) (bool, availability.Result, error) {
	f.lastSlots = req
	f.lastCheck = t
	if f.err != nil {
		return false, availability.Result{}, f.err
	}
	return f.slotsResp.Result.Offers(t), f.slotsResp.Result, nil
}

func (f *fakeAvailability) Availability(context.Context, service.AvailabilityRequest) (availability.Aggregate, error) {
	return f.aggregate, f.err
}

func (f *fakeAvailability) ServicesAt(context.Context, service.AvailabilityRequest, availability.WallClock) ([]string, error) {
	return f.servicesAt, f.err
}

func (f *fakeAvailability) DayView(context.Context, string, time.Time) (service.DayView, error) {
	return f.dayView, f.err
}

func TestSlotsHandler(t *testing.T) {
	svc := &fakeAvailability{slotsResp: service.SlotsResponse{
		DurationMinutes: 90,
		Result:          availability.Result{Slots: []availability.WallClock{540, 630}},
	}}
	h := NewPublic(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?professional_id=pro-1&service_id=svc-1&date=2024-03-04&exempt_start=10:00&exempt_end=11:00&not_before=09:00", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Slots    []string `json:"slots"`
		Duration string   `json:"duration"`
		Reason   string   `json:"unavailable_reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 2 || body.Slots[1] != "10:30" || body.Duration != "1h 30min" || body.Reason != "" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if svc.lastSlots.Exempt == nil || svc.lastSlots.Exempt.Start.String() != "10:00" {
		t.Fatalf("expected exempt interval to be forwarded, got %+v", svc.lastSlots)
	}
	if svc.lastSlots.NotBefore == nil || svc.lastSlots.NotBefore.String() != "09:00" {
		t.Fatalf("expected not_before to be forwarded, got %+v", svc.lastSlots)
	}
	if svc.lastSlots.Date.Weekday() != time.Monday {
		t.Fatalf("expected monday, got %s", svc.lastSlots.Date.Weekday())
	}
}

func TestSlotsHandlerReportsReason(t *testing.T) {
	svc := &fakeAvailability{slotsResp: service.SlotsResponse{
		DurationMinutes: 30,
		Result:          availability.Result{Slots: []availability.WallClock{}, UnavailableReason: availability.ReasonDayClosed},
	}}
	rec := httptest.NewRecorder()
	NewPublic(svc, nil).Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?professional_id=pro-1&date=2024-03-03&duration=30", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) || !strings.Contains(rec.Body.String(), `"unavailable_reason":"DAY_CLOSED"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if svc.lastSlots.Duration != "30" {
		t.Fatalf("expected raw duration forwarded, got %#v", svc.lastSlots.Duration)
	}
}

func TestSlotsHandlerValidation(t *testing.T) {
	h := NewPublic(&fakeAvailability{}, nil)
	cases := []string{
		"/api/v1/public/slots?date=2024-03-04",
		"/api/v1/public/slots?professional_id=p",
		"/api/v1/public/slots?professional_id=p&date=04/03/2024",
		"/api/v1/public/slots?professional_id=p&date=2024-03-04&exempt_start=10:00",
		"/api/v1/public/slots?professional_id=p&date=2024-03-04&exempt_start=11:00&exempt_end=10:00",
		"/api/v1/public/slots?professional_id=p&date=2024-03-04&not_before=9am",
	}
	for _, url := range cases {
		rec := httptest.NewRecorder()
		h.Slots(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", url, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSlotsHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrServiceNotFound, http.StatusNotFound},
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		NewPublic(&fakeAvailability{err: tc.err}, nil).Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?professional_id=p&date=2024-03-04", nil))
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}
}

func TestCheckHandler(t *testing.T) {
	svc := &fakeAvailability{slotsResp: service.SlotsResponse{Result: availability.Result{Slots: []availability.WallClock{540, 600}}}}
	h := NewPublic(svc, nil)

	body := `{"professional_id":"pro-1","service_id":"svc-1","date":"2024-03-04","start":"10:00","exempt_start":"10:00","exempt_end":"11:00"}`
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots/check", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"bookable":true`) {
		t.Fatalf("expected bookable, got %s", rec.Body.String())
	}
	if svc.lastCheck.String() != "10:00" || svc.lastSlots.Exempt == nil {
		t.Fatalf("unexpected forwarded request %+v %s", svc.lastSlots, svc.lastCheck)
	}

	body = `{"professional_id":"pro-1","date":"2024-03-04","start":"09:30","duration":45}`
	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots/check", strings.NewReader(body)))
	if !strings.Contains(rec.Body.String(), `"bookable":false`) {
		t.Fatalf("expected not bookable, got %s", rec.Body.String())
	}
	if n, ok := svc.lastSlots.Duration.(json.Number); !ok || n.String() != "45" {
		t.Fatalf("expected numeric duration forwarded, got %#v", svc.lastSlots.Duration)
	}

	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots/check", strings.NewReader(`{"professional_id":"p","date":"2024-03-04","start":"25:00"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start, got %d", rec.Code)
	}
}

func TestAvailabilityHandlers(t *testing.T) {
	svc := &fakeAvailability{
		aggregate: availability.Aggregate{
			Union: []availability.WallClock{540, 570},
			PerService: map[string]availability.Result{
				"a": {Slots: []availability.WallClock{540, 570}},
				"b": {Slots: []availability.WallClock{}, UnavailableReason: availability.ReasonServiceNotOffered},
			},
		},
		servicesAt: []string{"a"},
	}
	h := NewPublic(svc, nil)

	rec := httptest.NewRecorder()
	h.Availability(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?professional_id=pro-1&date=2024-03-04", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var agg struct {
		Slots    []string `json:"slots"`
		Services map[string]struct {
			Slots  []string `json:"slots"`
			Reason string   `json:"unavailable_reason"`
		} `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agg.Slots) != 2 || agg.Services["b"].Reason != string(availability.ReasonServiceNotOffered) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServicesAt(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/availability/services?professional_id=pro-1&date=2024-03-04&time=09:00", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"service_ids":["a"]`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServicesAt(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/availability/services?professional_id=pro-1&date=2024-03-04", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without time, got %d", rec.Code)
	}
}

func TestDayHandler(t *testing.T) {
	svc := &fakeAvailability{dayView: service.DayView{
		Day:         availability.OpenDay(540, 720),
		Occupied:    []availability.Interval{{Start: 600, End: 630}},
		FreeWindows: []availability.Interval{{Start: 540, End: 600}, {Start: 630, End: 720}},
	}}
	rec := httptest.NewRecorder()
	NewPublic(svc, nil).Day(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/day?professional_id=pro-1&date=2024-03-04", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"free_windows":[{"start":"09:00","end":"10:00"},{"start":"10:30","end":"12:00"}]`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
