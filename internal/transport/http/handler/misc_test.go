package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-futureme/internal/application/lifecycle"
	"github.com/go-futureme/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBadge struct{ mock.Mock }

func (m *mockBadge) Refresh(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockBadge) Clear(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockBadge) Current() int                    { return m.Called().Int(0) }

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Submit(ctx context.Context, ev lifecycle.Event) error {
	return m.Called(ctx, ev).Error(0)
}
func (m *mockEvents) InForeground() bool { return m.Called().Bool(0) }

type mockPerms struct{ mock.Mock }

func (m *mockPerms) RequestPermission(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockPerms) Permission(ctx context.Context) (domain.PermissionState, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.PermissionState), args.Error(1)
}

type mockCenter struct{ mock.Mock }

func (m *mockCenter) SetPermission(state domain.PermissionState) { m.Called(state) }
func (m *mockCenter) Pending() []domain.Delivery {
	return m.Called().Get(0).([]domain.Delivery)
}
func (m *mockCenter) Recent() []domain.Delivery {
	return m.Called().Get(0).([]domain.Delivery)
}

func TestHealth_Ping(t *testing.T) {
	h := NewHealthHandler("memory")
	rr := httptest.NewRecorder()
	h.Ping(rr, withURLParams(httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil), "action", "ping"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Ping(rr, withURLParams(httptest.NewRequest(http.MethodGet, "/v1/health-check/nope", nil), "action", "nope"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBadge_GetRefreshClear(t *testing.T) {
	b := &mockBadge{}
	b.On("Current").Return(2)
	b.On("Refresh", mock.Anything).Return(3, nil)
	b.On("Clear", mock.Anything).Return(nil)
	h := NewBadgeHandler(b)

	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/v1/badge", nil))
	assert.JSONEq(t, `{"count":2}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/v1/badge/refresh", nil))
	assert.JSONEq(t, `{"count":3}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Clear(rr, httptest.NewRequest(http.MethodDelete, "/v1/badge", nil))
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())
	b.AssertExpectations(t)
}

func TestLifecycle_Signal(t *testing.T) {
	ev := &mockEvents{}
	ev.On("Submit", mock.Anything, lifecycle.Event{Kind: lifecycle.Background}).Return(nil)
	h := NewLifecycleHandler(ev)

	rr := httptest.NewRecorder()
	h.Signal(rr, withURLParams(httptest.NewRequest(http.MethodPost, "/v1/lifecycle/background", nil), "kind", "background"))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	ev.AssertExpectations(t)
}

func TestLifecycle_SignalRejectsTapAndUnknown(t *testing.T) {
	h := NewLifecycleHandler(&mockEvents{})
	for _, kind := range []string{"tap", "sleep"} {
		rr := httptest.NewRecorder()
		h.Signal(rr, withURLParams(httptest.NewRequest(http.MethodPost, "/v1/lifecycle/"+kind, nil), "kind", kind))
		assert.Equal(t, http.StatusBadRequest, rr.Code, kind)
	}
}

func TestLifecycle_Tap(t *testing.T) {
	ev := &mockEvents{}
	ev.On("Submit", mock.Anything, lifecycle.Event{Kind: lifecycle.Tap, LetterID: "l1"}).Return(nil)
	h := NewLifecycleHandler(ev)

	rr := httptest.NewRecorder()
	h.Tap(rr, withURLParams(httptest.NewRequest(http.MethodPost, "/v1/notifications/l1/tap", nil), "id", "l1"))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	ev.AssertExpectations(t)
}

func TestNotifications_Permission(t *testing.T) {
	perms := &mockPerms{}
	perms.On("Permission", mock.Anything).Return(domain.PermissionUndetermined, nil)
	perms.On("RequestPermission", mock.Anything).Return(true, nil)
	h := NewNotificationHandler(perms, &mockCenter{})

	rr := httptest.NewRecorder()
	h.Permission(rr, httptest.NewRequest(http.MethodGet, "/v1/notifications/permission", nil))
	assert.JSONEq(t, `{"state":"undetermined"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.RequestPermission(rr, httptest.NewRequest(http.MethodPost, "/v1/notifications/permission", nil))
	assert.JSONEq(t, `{"granted":true}`, rr.Body.String())
}

func TestNotifications_SetPermissionAndPending(t *testing.T) {
	center := &mockCenter{}
	center.On("SetPermission", domain.PermissionDenied).Return()
	center.On("Pending").Return([]domain.Delivery{{ID: "l1", FireAt: t0}})
	h := NewNotificationHandler(&mockPerms{}, center)

	rr := httptest.NewRecorder()
	h.SetPermission(rr, httptest.NewRequest(http.MethodPut, "/v1/notifications/permission", bytes.NewBufferString(`{"state":"denied"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Pending(rr, httptest.NewRequest(http.MethodGet, "/v1/notifications/pending", nil))
	var pending []domain.Delivery
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "l1", pending[0].ID)
	center.AssertExpectations(t)
}
