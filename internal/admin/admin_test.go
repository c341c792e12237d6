package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/session"
	"github.com/danmuck/netcore/internal/testutil/testlog"
	"github.com/danmuck/netcore/internal/transport"
	"github.com/gin-gonic/gin"
)

func newTestAdmin(t *testing.T) (*Admin, *transport.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := command.NewDispatcher(nil)
	_ = d.Register("ping", func(context.Context, *command.Call) (value.Value, error) {
		return value.String("pong"), nil
	})
	srv, err := transport.NewServer(transport.ServerConfig{
		TCPAddr: "127.0.0.1:0",
		Session: session.DefaultConfig(),
	}, d)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, pc, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx, ln, pc) }()
	return New(":0", srv, d, nil), srv, ln.Addr().String()
}

func doJSON(t *testing.T, a *Admin, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s: %v body=%s", method, path, err, rr.Body.String())
	}
	return rr.Code, out
}

func TestHealthAndCommands(t *testing.T) {
	testlog.Start(t)
	a, _, _ := newTestAdmin(t)

	code, body := doJSON(t, a, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", code, body)
	}
	code, body = doJSON(t, a, http.MethodGet, "/commands", "")
	names, _ := body["commands"].([]any)
	if code != http.StatusOK || len(names) != 1 || names[0] != "ping" {
		t.Fatalf("commands: %d %v", code, body)
	}
}

func TestConnectionsListAndDisconnect(t *testing.T) {
	testlog.Start(t)
	a, srv, addr := newTestAdmin(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cl, err := transport.Dial(ctx, transport.TCP, addr, session.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cl.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("server never saw the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	code, body := doJSON(t, a, http.MethodGet, "/connections", "")
	list, _ := body["connections"].([]any)
	if code != http.StatusOK || len(list) != 1 {
		t.Fatalf("connections: %d %v", code, body)
	}
	id, _ := list[0].(map[string]any)["id"].(string)

	code, body = doJSON(t, a, http.MethodGet, "/connections/"+id, "")
	if code != http.StatusOK || body["transport"] != "tcp" || body["group"] != transport.DefaultGroup {
		t.Fatalf("connection: %d %v", code, body)
	}

	code, body = doJSON(t, a, http.MethodPost, "/broadcast", `{"message":"hi"}`)
	if code != http.StatusOK || body["sent"] != float64(1) {
		t.Fatalf("broadcast: %d %v", code, body)
	}

	code, _ = doJSON(t, a, http.MethodDelete, "/connections/"+id, "")
	if code != http.StatusOK {
		t.Fatalf("disconnect: %d", code)
	}
	select {
	case <-cl.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("client not closed after disconnect")
	}

	code, _ = doJSON(t, a, http.MethodDelete, "/connections/"+id, "")
	if code != http.StatusNotFound {
		t.Fatalf("second disconnect: %d", code)
	}
}

func TestBroadcastRequiresMessage(t *testing.T) {
	testlog.Start(t)
	a, _, _ := newTestAdmin(t)
	code, body := doJSON(t, a, http.MethodPost, "/broadcast", `{"group":"ops"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", code, body)
	}
}

func TestRequestIDIsEchoedOrIssued(t *testing.T) {
	testlog.Start(t)
	a, _, _ := newTestAdmin(t)

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("request id not echoed: %q", got)
	}

	rr = httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/groups", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id not issued")
	}
}
