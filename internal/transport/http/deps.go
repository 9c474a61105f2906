package http

import (
	"net/http"

	"github.com/go-futureme/internal/application/letter"
	jwtinfra "github.com/go-futureme/internal/infrastructure/jwt"
	"github.com/go-futureme/internal/transport/http/handler"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Letters       letter.Service
	Badge         handler.BadgeService
	Lock          handler.SessionLock
	Auth          handler.AuthPrompt
	Grants        *jwtinfra.Provider
	Lifecycle     handler.EventSubmitter
	Permissions   handler.PermissionService
	Notifications handler.NotificationCenter
	Changes       handler.ChangeSource
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Backend string
}
