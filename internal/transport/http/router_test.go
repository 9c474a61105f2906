package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-futureme/internal/application/applock"
	"github.com/go-futureme/internal/application/badge"
	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/application/letter"
	"github.com/go-futureme/internal/application/lifecycle"
	"github.com/go-futureme/internal/application/reconcile"
	"github.com/go-futureme/internal/application/scheduler"
	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/infrastructure/authn"
	jwtinfra "github.com/go-futureme/internal/infrastructure/jwt"
	"github.com/go-futureme/internal/infrastructure/memory"
	"github.com/go-futureme/internal/infrastructure/metrics"
	"github.com/go-futureme/internal/infrastructure/notifier"
	"github.com/go-futureme/internal/pkg/keylock"
	"github.com/go-futureme/internal/transport/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

type app struct {
	router  http.Handler
	clock   *delivery.ManualClock
	center  *notifier.Center
	bridge  *authn.Bridge
	machine *applock.Machine
	coord   *lifecycle.Coordinator
	agg     *badge.Aggregator
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	bus := events.NewBus()
	clock := delivery.NewManualClock(t0)
	m := metrics.New()
	repo := memory.NewLetterRepo()
	center := notifier.NewCenter(notifier.BusPresenter{Pub: bus}, notifier.Options{
		Permission: domain.PermissionGranted,
		Clock:      clock,
	})
	sched := scheduler.New(center, repo, clock, m)
	agg := badge.NewAggregator(repo, m, clock, bus)
	locks := keylock.New()
	svc := letter.NewService(repo, memory.NewBlobStore(), sched, agg, clock, locks, bus)
	pass := reconcile.New(repo, locks, bus, m)
	bridge := authn.NewBridge(bus, true)
	machine, err := applock.New(ctx, bridge, memory.NewSettingsRepo(), bus, false)
	require.NoError(t, err)
	coord := lifecycle.New(pass, agg, machine, clock, bus, time.Minute)
	grants, err := jwtinfra.NewProvider(&config.Config{GrantSecret: "test", GrantTTL: time.Hour})
	require.NoError(t, err)

	router := NewRouter(&config.Config{AllowedOrigins: []string{"*"}}, &Deps{
		Letters:       svc,
		Badge:         agg,
		Lock:          machine,
		Auth:          bridge,
		Grants:        grants,
		Lifecycle:     coord,
		Permissions:   sched,
		Notifications: center,
		Changes:       bus,
		Metrics:       m.Handler(),
		Backend:       "memory",
	})
	return &app{router: router, clock: clock, center: center, bridge: bridge, machine: machine, coord: coord, agg: agg}
}

func (a *app) do(t *testing.T, method, target, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.RemoteAddr = "127.0.0.1:5000"
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, r)
	return rr
}

func TestRouter_LetterLifecycle(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	rr := a.do(t, http.MethodPost, "/v1/letters", "", domain.ComposeRequest{
		Title:     "hello",
		Body:      "dear future me",
		DeliverAt: t0.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created handler.LetterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	id := created.Letter.LetterID
	require.NotEmpty(t, id)
	require.Len(t, a.center.Pending(), 1)

	rr = a.do(t, http.MethodGet, "/v1/letters/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var v domain.LetterView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	assert.Equal(t, domain.Locked, v.State)
	assert.Empty(t, v.Body)

	rr = a.do(t, http.MethodPost, "/v1/letters/"+id+"/open", "", nil)
	assert.Equal(t, http.StatusLocked, rr.Code)

	a.clock.Advance(time.Hour)
	require.NoError(t, a.coord.Handle(ctx, lifecycle.Event{Kind: lifecycle.Active}))
	assert.Equal(t, 1, a.agg.Current())

	rr = a.do(t, http.MethodGet, "/v1/letters/inbox", "", nil)
	var inbox []domain.LetterView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&inbox))
	require.Len(t, inbox, 1)
	assert.True(t, inbox[0].Delivered)
	assert.True(t, inbox[0].IsNew)

	rr = a.do(t, http.MethodPost, "/v1/letters/"+id+"/open", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/badge/refresh", "", nil)
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())

	rr = a.do(t, http.MethodDelete, "/v1/letters/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(t, http.MethodGet, "/v1/letters/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.True(t, strings.Contains(rr.Body.String(), "futureme_letters_delivered_total 1"))
}

func TestRouter_RescheduleMovesTrigger(t *testing.T) {
	a := newApp(t)

	rr := a.do(t, http.MethodPost, "/v1/letters", "", domain.ComposeRequest{Body: "b", DeliverAt: t0.Add(time.Hour)})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created handler.LetterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))

	delay := int64(24 * 60 * 60)
	rr = a.do(t, http.MethodPut, "/v1/letters/"+created.Letter.LetterID+"/deliver-at", "", domain.RescheduleRequest{DelaySeconds: &delay})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	pending := a.center.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, t0.Add(24*time.Hour), pending[0].FireAt)
}

func TestRouter_LockGate(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	// Enabling confirms with a prompt the shell answers out of band.
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		r := httptest.NewRequest(http.MethodPut, "/v1/lock/settings", strings.NewReader(`{"enabled":true}`))
		rr := httptest.NewRecorder()
		a.router.ServeHTTP(rr, r)
		done <- rr
	}()
	require.Eventually(t, a.bridge.Prompting, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/v1/lock/auth-result", "", map[string]string{"outcome": "success"}).Code)
	require.Equal(t, http.StatusOK, (<-done).Code)
	require.True(t, a.machine.Enabled())

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/letters", "", nil).Code)

	rr := a.do(t, http.MethodPost, "/v1/lock/grant", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var grant handler.GrantEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&grant))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/v1/letters", grant.Bearer, nil).Code)

	require.NoError(t, a.coord.Handle(ctx, lifecycle.Event{Kind: lifecycle.Background}))
	assert.Equal(t, domain.PendingReauth, a.machine.State())
	assert.Equal(t, http.StatusLocked, a.do(t, http.MethodGet, "/v1/letters", grant.Bearer, nil).Code)
	assert.Equal(t, http.StatusLocked, a.do(t, http.MethodPost, "/v1/lock/grant", "", nil).Code)

	// Foreground starts the automatic prompt.
	require.NoError(t, a.coord.Handle(ctx, lifecycle.Event{Kind: lifecycle.Foreground}))
	require.Eventually(t, a.bridge.Prompting, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, a.bridge.Resolve(domain.AuthSuccess))
	require.Eventually(t, func() bool { return a.machine.State() == domain.Unlocked }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/letters", grant.Bearer, nil).Code)

	rr = a.do(t, http.MethodPost, "/v1/lock/grant", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&grant))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/v1/letters", grant.Bearer, nil).Code)
}

func TestRouter_HealthAndLockStatusAlwaysReachable(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/v1/health-check/ping", "", nil).Code)
	rr := a.do(t, http.MethodGet, "/v1/lock", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"state":"unlocked"`)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*", "localhost:5173"}, originPatterns([]string{"*", "http://localhost:5173"}))
}
