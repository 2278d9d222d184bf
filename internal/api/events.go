package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/studio"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

// handleEvents streams the session's events as JSON text frames until the
// client disconnects or the session closes. The first frame is a
// "snapshot" carrying the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := sess.Subscribe()
	defer cancel()

	// The stream is write-only; CloseRead handles control frames and
	// cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx).With("session_id", sess.ID())

	if err := writeFrame(ctx, conn, map[string]any{"kind": "snapshot", "session": viewOf(sess)}); err != nil {
		log.Debug("event stream ended", "err", err)
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("event stream ping failed", "err", err)
				return
			}
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := writeFrame(ctx, conn, ev); err != nil {
				log.Debug("event stream ended", "err", err)
				return
			}
			if ev.Kind == studio.EventSessionClosed {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
