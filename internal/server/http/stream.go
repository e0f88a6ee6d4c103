package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/coachpo/swapflow/internal/observability"
)

const streamWriteTimeout = 5 * time.Second

// streamEvents upgrades the connection and forwards engine events until the
// client disconnects or the bus closes.
func (s *httpServer) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is handled at the HTTP layer
	})
	if err != nil {
		observability.Log().Debug("websocket accept failed",
			observability.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.deps.Bus.Subscribe(ctx)
	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, streamWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, payload)
		writeCancel()
		if err != nil {
			return
		}
	}
}
