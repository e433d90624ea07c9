package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, testService, *echo.Echo) {
	ts := newTestService()
	h := NewHandler(ts.svc)
	e := echo.New()
	return h, ts, e
}

func httpStatusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestHandler_CreateOrder(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","panels":[{"test_group_id":"` + uuid.New().String() + `","test_group_name":"CBC","expected_analytes":12}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateOrder(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var o Order
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if o.Status != StatusOrderCreated {
		t.Errorf("expected status %s, got %s", StatusOrderCreated, o.Status)
	}
}

func TestHandler_CreateOrder_MissingPatient(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"panels":[{"test_group_id":"` + uuid.New().String() + `","test_group_name":"CBC","expected_analytes":12}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateOrder(c)
	if err == nil {
		t.Fatal("expected error for missing patient_id")
	}
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetOrder(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusOrderCreated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	err := h.GetOrder(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetOrder(c)
	if err == nil {
		t.Fatal("expected error for not found")
	}
	if code := httpStatusOf(t, err); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetOrder_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetOrder(c)
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListOrders_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ListOrders(c)
	if err == nil {
		t.Fatal("expected error for unknown status filter")
	}
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ApplyAction(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusPendingCollection)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "action")
	c.SetParamValues(o.ID.String(), string(ActionMarkCollected))

	err := h.ApplyAction(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var updated Order
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if updated.Status != StatusCollected {
		t.Errorf("expected status %s, got %s", StatusCollected, updated.Status)
	}
}

func TestHandler_ApplyAction_UnknownAction(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusPendingCollection)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "action")
	c.SetParamValues(o.ID.String(), "teleport")

	err := h.ApplyAction(c)
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	if code := httpStatusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ApplyAction_InvalidTransition(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusOrderCreated)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "action")
	c.SetParamValues(o.ID.String(), string(ActionApproveResults))

	err := h.ApplyAction(c)
	if err == nil {
		t.Fatal("expected error for invalid transition")
	}
	if code := httpStatusOf(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_GetConsistency(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusCollected)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	err := h.GetConsistency(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var report ConsistencyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !report.Consistent {
		t.Errorf("expected consistent report, got %+v", report)
	}
}

func TestHandler_RepairConsistency(t *testing.T) {
	h, ts, e := newTestHandler()
	o := newOrder(StatusOrderCreated)
	at := o.CreatedAt
	by := "tech-1"
	o.SampleCollectedAt = &at
	o.SampleCollectedBy = &by
	if err := ts.orders.Create(context.Background(), o); err != nil {
		t.Fatalf("seeding order: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	err := h.RepairConsistency(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var repaired Order
	if err := json.Unmarshal(rec.Body.Bytes(), &repaired); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if repaired.Status != StatusCollected {
		t.Errorf("expected status %s after repair, got %s", StatusCollected, repaired.Status)
	}
}

func TestHandler_GetStatusHistory(t *testing.T) {
	h, ts, e := newTestHandler()
	o := seedOrder(t, ts, StatusPendingCollection)
	if _, err := ts.svc.ApplyAction(context.Background(), o.ID, ActionMarkCollected, "tech-1"); err != nil {
		t.Fatalf("applying action: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	err := h.GetStatusHistory(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var history []*StatusHistory
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Action != ActionMarkCollected {
		t.Errorf("expected action %s, got %s", ActionMarkCollected, history[0].Action)
	}
}
