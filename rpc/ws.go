package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"epochstake/core/types"
	"epochstake/rpc/middleware"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams committed events. Callers only see events carrying
// their own owner attribute unless they hold the admin scope. Browsers that
// cannot set headers may pass the bearer token as ?token=.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" || s.auth == nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		authenticated, err := s.auth.Authenticate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		caller = authenticated
	}
	filter := parseTypeFilter(r.URL.Query().Get("types"))

	// Subscribe before the handshake completes so nothing committed after
	// the client connects is missed.
	updates, cancel := s.bus.Subscribe()
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates, func(evt *types.Event) bool {
		return eventVisible(caller, evt, filter)
	}); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event, visible func(*types.Event) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if !visible(evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter[part] = struct{}{}
		}
	}
	return filter
}

func eventVisible(caller *middleware.Caller, evt *types.Event, filter map[string]struct{}) bool {
	if evt == nil || caller == nil {
		return false
	}
	if len(filter) > 0 {
		if _, ok := filter[evt.Type]; !ok {
			return false
		}
	}
	if caller.HasScope(middleware.ScopeAdmin) {
		return true
	}
	return evt.Attributes["owner"] == caller.Address.String()
}
