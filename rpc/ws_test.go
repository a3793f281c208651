package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"epochstake/core/events"
	"epochstake/core/types"
	"epochstake/crypto"
	"epochstake/rpc/middleware"
)

func dialEvents(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) types.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt types.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return evt
}

func TestEventStreamFiltersByOwner(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dialEvents(t, srv, "token="+env.ownerToken)

	// Events of other owners and pool-level events are not delivered.
	other := crypto.DeriveAddress([]byte("someone-else"))
	env.bus.Emit(events.StakeUserInitialized{Owner: other, Timestamp: 1})
	env.bus.Emit(events.Mint{Asset: "GM", To: other, Amount: 5})
	env.bus.Emit(events.StakeStaked{Owner: env.owner, Epoch: 1, Amount: 7, Total: 7, StartTime: 2})

	evt := readEvent(t, conn)
	if evt.Type != events.TypeStakeStaked || evt.Attributes["owner"] != env.owner.String() {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestEventStreamAdminTypeFilter(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dialEvents(t, srv, "token="+env.adminToken+"&types="+events.TypeStakeUnstaked)

	owner := crypto.DeriveAddress([]byte("any"))
	env.bus.Emit(events.StakeStaked{Owner: owner, Epoch: 1, Amount: 1, Total: 1, StartTime: 1})
	env.bus.Emit(events.StakeUnstaked{Owner: owner, Epoch: 1, Principal: 1, Reward: 0, Elapsed: 60, Timestamp: 61})

	evt := readEvent(t, conn)
	if evt.Type != events.TypeStakeUnstaked || evt.Attributes["owner"] != owner.String() {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestEventStreamRequiresCaller(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestEventVisible(t *testing.T) {
	owner := crypto.DeriveAddress([]byte("owner"))
	mine := &types.Event{Type: events.TypeStakeStaked, Attributes: map[string]string{"owner": owner.String()}}
	pool := &types.Event{Type: events.TypeStakePoolInitialized, Attributes: map[string]string{"asset": "GM"}}

	user := &middleware.Caller{Address: owner}
	admin := &middleware.Caller{Address: crypto.DeriveAddress([]byte("admin")), Scopes: []string{middleware.ScopeAdmin}}

	if !eventVisible(user, mine, nil) || eventVisible(user, pool, nil) {
		t.Fatalf("user visibility wrong")
	}
	if !eventVisible(admin, pool, nil) {
		t.Fatalf("admin should see pool events")
	}
	filter := parseTypeFilter(" " + events.TypeStakeUnstaked + " ,")
	if eventVisible(admin, mine, filter) {
		t.Fatalf("type filter not applied")
	}
	if eventVisible(nil, mine, nil) {
		t.Fatalf("nil caller must see nothing")
	}
}
