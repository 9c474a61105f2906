package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-futureme/internal/domain"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamBuffer = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// ChangeSource is the change bus as seen by a stream subscriber.
type ChangeSource interface {
	Subscribe(fn func(domain.Change)) (cancel func())
}

// EventsHandler streams core changes to the UI shell over a WebSocket.
type EventsHandler struct {
	source  ChangeSource
	origins []string
}

// NewEventsHandler accepts upgrades from hosts matching origins ("*" for any).
func NewEventsHandler(source ChangeSource, origins []string) *EventsHandler {
	return &EventsHandler{source: source, origins: origins}
}

// Stream sends every change as a JSON text message. A client that falls
// behind by more than streamBuffer changes is disconnected and must resync.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("event stream upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	changes := make(chan domain.Change, streamBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	cancel := h.source.Subscribe(func(c domain.Change) {
		select {
		case changes <- c:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer cancel()

	// The shell never sends; CloseRead handles its close frame.
	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case c := <-changes:
			if err := write(ctx, conn, c); err != nil {
				slog.Info("event stream write failed", "error", err)
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, c domain.Change) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, c)
}
