package http

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/transport/http/handler"
	appmiddleware "github.com/go-futureme/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the local control API.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	gate := appmiddleware.Gate(deps.Lock, deps.Grants)

	// 5 requests/second, burst of 10 on endpoints that write or prompt.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Backend)
	letterH := handler.NewLetterHandler(deps.Letters)
	badgeH := handler.NewBadgeHandler(deps.Badge)
	lockH := handler.NewLockHandler(deps.Lock, deps.Auth, deps.Grants)
	lifecycleH := handler.NewLifecycleHandler(deps.Lifecycle)
	notifH := handler.NewNotificationHandler(deps.Permissions, deps.Notifications)
	eventsH := handler.NewEventsHandler(deps.Changes, originPatterns(cfg.AllowedOrigins))

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Always reachable: the shell needs these while locked ────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/events", eventsH.Stream)

		r.Get("/lock", lockH.Status)
		r.With(sensitiveRL.Limit).Post("/lock/unlock", lockH.Unlock)
		r.Post("/lock/grant", lockH.Grant)
		r.Post("/lock/auth-result", lockH.AuthResult)
		r.Put("/lock/capability", lockH.Capability)

		r.Get("/lifecycle", lifecycleH.State)
		r.Post("/lifecycle/{kind}", lifecycleH.Signal)
		r.With(sensitiveRL.Limit).Post("/notifications/{id}/tap", lifecycleH.Tap)

		r.Get("/notifications/permission", notifH.Permission)
		r.Post("/notifications/permission", notifH.RequestPermission)
		r.Put("/notifications/permission", notifH.SetPermission)
		r.Get("/notifications/pending", notifH.Pending)
		r.Get("/notifications/delivered", notifH.Delivered)

		// ── Letter content: withheld while the session lock is pending ──────
		r.Group(func(r chi.Router) {
			r.Use(gate)

			r.Put("/lock/settings", lockH.Settings)

			r.Get("/letters", letterH.List)
			r.Get("/letters/inbox", letterH.Inbox)
			r.With(sensitiveRL.Limit).Post("/letters", letterH.Compose)
			r.Get("/letters/{id}", letterH.Get)
			r.Delete("/letters/{id}", letterH.Delete)
			r.Post("/letters/{id}/open", letterH.Open)
			r.Put("/letters/{id}/deliver-at", letterH.Reschedule)
			r.Get("/letters/{id}/attachments/{index}", letterH.Attachment)

			r.Get("/badge", badgeH.Get)
			r.Post("/badge/refresh", badgeH.Refresh)
			r.Delete("/badge", badgeH.Clear)
		})
	})

	return r
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
