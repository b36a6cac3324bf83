package routes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"p2pescrow/core/types"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades to a websocket and forwards committed engine events.
// The optional "type" query parameter keeps only events whose type starts
// with the given prefix.
func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeJSONError(w, http.StatusNotImplemented, codeInternal, errNotConfigured)
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only drained to observe the client closing.
	ctx := conn.CloseRead(r.Context())
	if err := a.forwardEvents(ctx, conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			a.logger.Debug("event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (a *api) forwardEvents(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel := a.stream.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if prefix != "" && !strings.HasPrefix(evt.Type, prefix) {
				continue
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(eventView{Type: evt.Type, Attributes: evt.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
