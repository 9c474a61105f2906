package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-futureme/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockLetterSvc struct{ mock.Mock }

func (m *mockLetterSvc) Compose(ctx context.Context, req domain.ComposeRequest) (*domain.Letter, error) {
	args := m.Called(ctx, req)
	if l, _ := args.Get(0).(*domain.Letter); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterSvc) Open(ctx context.Context, letterID string) (*domain.Letter, error) {
	args := m.Called(ctx, letterID)
	if l, _ := args.Get(0).(*domain.Letter); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterSvc) Delete(ctx context.Context, letterID string) error {
	return m.Called(ctx, letterID).Error(0)
}

func (m *mockLetterSvc) Reschedule(ctx context.Context, letterID string, deliverAt time.Time) (*domain.Letter, error) {
	args := m.Called(ctx, letterID, deliverAt)
	if l, _ := args.Get(0).(*domain.Letter); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterSvc) RescheduleBy(ctx context.Context, letterID string, d time.Duration) (*domain.Letter, error) {
	args := m.Called(ctx, letterID, d)
	if l, _ := args.Get(0).(*domain.Letter); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterSvc) List(ctx context.Context) ([]domain.LetterView, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.LetterView), args.Error(1)
}

func (m *mockLetterSvc) Inbox(ctx context.Context) ([]domain.LetterView, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.LetterView), args.Error(1)
}

func (m *mockLetterSvc) Get(ctx context.Context, letterID string) (*domain.LetterView, error) {
	args := m.Called(ctx, letterID)
	if v, _ := args.Get(0).(*domain.LetterView); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterSvc) Attachment(ctx context.Context, letterID string, index int) ([]byte, string, error) {
	args := m.Called(ctx, letterID, index)
	b, _ := args.Get(0).([]byte)
	return b, args.String(1), args.Error(2)
}

// --- helpers ---

// withURLParams injects chi URL params into the request context.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// --- Compose ---

func TestCompose_InvalidBody(t *testing.T) {
	h := NewLetterHandler(&mockLetterSvc{})
	rr := httptest.NewRecorder()
	h.Compose(rr, httptest.NewRequest(http.MethodPost, "/v1/letters", bytes.NewBufferString("not-json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCompose_ValidationFailure(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Compose", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: body", domain.ErrBadRequest))
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Compose(rr, httptest.NewRequest(http.MethodPost, "/v1/letters", jsonBody(t, domain.ComposeRequest{DeliverAt: t0})))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestCompose_HappyPath(t *testing.T) {
	svc := &mockLetterSvc{}
	l := &domain.Letter{LetterID: "l1", Body: "hi", DeliverAt: t0}
	svc.On("Compose", mock.Anything, mock.MatchedBy(func(req domain.ComposeRequest) bool {
		return req.Body == "hi" && req.DeliverAt.Equal(t0)
	})).Return(l, nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Compose(rr, httptest.NewRequest(http.MethodPost, "/v1/letters", jsonBody(t, domain.ComposeRequest{Body: "hi", DeliverAt: t0})))
	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp LetterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "l1", resp.Letter.LetterID)
	assert.Empty(t, resp.Warning)
	svc.AssertExpectations(t)
}

func TestCompose_SchedulingDeniedStillCreated(t *testing.T) {
	svc := &mockLetterSvc{}
	l := &domain.Letter{LetterID: "l1", Body: "hi", DeliverAt: t0}
	svc.On("Compose", mock.Anything, mock.Anything).Return(l, fmt.Errorf("schedule notification: %w", domain.ErrSchedulingDenied))
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Compose(rr, httptest.NewRequest(http.MethodPost, "/v1/letters", jsonBody(t, domain.ComposeRequest{Body: "hi", DeliverAt: t0})))
	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp LetterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Contains(t, resp.Warning, "scheduling denied")
}

// --- Open / Get ---

func TestOpen_LockedLetter(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Open", mock.Anything, "l1").Return(nil, fmt.Errorf("letter l1: %w", domain.ErrLocked))
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Open(rr, withURLParams(httptest.NewRequest(http.MethodPost, "/v1/letters/l1/open", nil), "id", "l1"))
	assert.Equal(t, http.StatusLocked, rr.Code)
	svc.AssertExpectations(t)
}

func TestOpen_HappyPath(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Open", mock.Anything, "l1").Return(&domain.Letter{LetterID: "l1", IsRead: true}, nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Open(rr, withURLParams(httptest.NewRequest(http.MethodPost, "/v1/letters/l1/open", nil), "id", "l1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.Letter
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.IsRead)
}

func TestGet_NotFound(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Get(rr, withURLParams(httptest.NewRequest(http.MethodGet, "/v1/letters/missing", nil), "id", "missing"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInbox_Empty(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Inbox", mock.Anything).Return([]domain.LetterView{}, nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Inbox(rr, httptest.NewRequest(http.MethodGet, "/v1/letters/inbox", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

// --- Reschedule ---

func TestReschedule_MissingFields(t *testing.T) {
	h := NewLetterHandler(&mockLetterSvc{})
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/v1/letters/l1/deliver-at", bytes.NewBufferString("{}"))
	h.Reschedule(rr, withURLParams(r, "id", "l1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReschedule_DelayOutOfRange(t *testing.T) {
	svc := &mockLetterSvc{}
	h := NewLetterHandler(svc)

	for _, body := range []string{
		`{"delay_seconds": 9223372036854775807}`,
		`{"delay_seconds": 10000000000}`,
		`{"delay_seconds": -60}`,
	} {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPut, "/v1/letters/l1/deliver-at", bytes.NewBufferString(body))
		h.Reschedule(rr, withURLParams(r, "id", "l1"))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	svc.AssertNotCalled(t, "RescheduleBy", mock.Anything, mock.Anything, mock.Anything)
}

func TestReschedule_Absolute(t *testing.T) {
	svc := &mockLetterSvc{}
	at := t0.Add(24 * time.Hour)
	svc.On("Reschedule", mock.Anything, "l1", mock.MatchedBy(at.Equal)).Return(&domain.Letter{LetterID: "l1", DeliverAt: at}, nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/v1/letters/l1/deliver-at", jsonBody(t, domain.RescheduleRequest{DeliverAt: &at}))
	h.Reschedule(rr, withURLParams(r, "id", "l1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestReschedule_DelayWithDeniedPermission(t *testing.T) {
	svc := &mockLetterSvc{}
	delay := int64(86400)
	svc.On("RescheduleBy", mock.Anything, "l1", 24*time.Hour).
		Return(&domain.Letter{LetterID: "l1"}, fmt.Errorf("reschedule notification: %w", domain.ErrSchedulingDenied))
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/v1/letters/l1/deliver-at", jsonBody(t, domain.RescheduleRequest{DelaySeconds: &delay}))
	h.Reschedule(rr, withURLParams(r, "id", "l1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp LetterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Warning)
	svc.AssertExpectations(t)
}

func TestReschedule_SchedulerFailureRolledBack(t *testing.T) {
	svc := &mockLetterSvc{}
	at := t0.Add(time.Hour)
	svc.On("Reschedule", mock.Anything, "l1", mock.MatchedBy(at.Equal)).Return(nil, fmt.Errorf("reschedule notification: %w", domain.ErrConflict))
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/v1/letters/l1/deliver-at", jsonBody(t, domain.RescheduleRequest{DeliverAt: &at}))
	h.Reschedule(rr, withURLParams(r, "id", "l1"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// --- Delete / Attachment ---

func TestDelete_HappyPath(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Delete", mock.Anything, "l1").Return(nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	h.Delete(rr, withURLParams(httptest.NewRequest(http.MethodDelete, "/v1/letters/l1", nil), "id", "l1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestAttachment_BadIndex(t *testing.T) {
	h := NewLetterHandler(&mockLetterSvc{})
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/letters/l1/attachments/x", nil)
	h.Attachment(rr, withURLParams(r, "id", "l1", "index", "x"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAttachment_ServesBytes(t *testing.T) {
	svc := &mockLetterSvc{}
	svc.On("Attachment", mock.Anything, "l1", 1).Return([]byte("png-bytes"), "image/png", nil)
	h := NewLetterHandler(svc)

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/letters/l1/attachments/1", nil)
	h.Attachment(rr, withURLParams(r, "id", "l1", "index", "1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rr.Body.String())
}

func TestHTTPError_UnknownIsInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	httpError(rr, fmt.Errorf("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk")
}
