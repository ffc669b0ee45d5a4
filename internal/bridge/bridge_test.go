package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDaemon is a minimal aria2-shaped WebSocket server for exercising the
// Bridge's transport/correlator loop without a real daemon.
type fakeDaemon struct {
	upgrader websocket.Upgrader
	server   *httptest.Server

	// handle, if set, is invoked per request frame with the decoded
	// request and the live connection; it controls reply ordering/content.
	handle func(conn *websocket.Conn, req rpcRequest)
}

func newFakeDaemon(handle func(conn *websocket.Conn, req rpcRequest)) *fakeDaemon {
	d := &fakeDaemon{handle: handle}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			d.handle(conn, req)
		}
	}))
	return d
}

func (d *fakeDaemon) wsURL() string {
	return "ws" + strings.TrimPrefix(d.server.URL, "http")
}

func (d *fakeDaemon) Close() { d.server.Close() }

func writeResult(t *testing.T, conn *websocket.Conn, id string, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	resp := struct {
		ID      string          `json:"id"`
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
	}{ID: id, JSONRPC: "2.0", Result: raw}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

// Property 1: IDs are monotonically increasing per Bridge instance.
func TestBridgeAssignsMonotonicIDs(t *testing.T) {
	seen := make(chan string, 4)
	daemon := newFakeDaemon(func(conn *websocket.Conn, req rpcRequest) {
		seen <- req.ID
		writeResult(t, conn, req.ID, "ok")
	})
	defer daemon.Close()

	b := New(Config{EndpointURL: daemon.wsURL()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 3; i++ {
		if _, err := b.Call(ctx, "getVersion", []any{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	want := []string{"1", "2", "3"}
	for i, w := range want {
		select {
		case got := <-seen:
			if got != w {
				t.Fatalf("request %d got id %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for request id")
		}
	}
}

// Property 2: responses correlate to the right caller even when the
// daemon replies out of order.
func TestBridgeCorrelatesOutOfOrderResponses(t *testing.T) {
	type pending struct {
		conn *websocket.Conn
		req  rpcRequest
	}
	reqs := make(chan pending, 4)
	daemon := newFakeDaemon(func(conn *websocket.Conn, req rpcRequest) {
		reqs <- pending{conn, req}
	})
	defer daemon.Close()

	b := New(Config{EndpointURL: daemon.wsURL()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	type callOutcome struct {
		label  string
		result json.RawMessage
		err    error
	}
	results := make(chan callOutcome, 2)

	// B is started only after A's request reached the daemon, so "first"
	// is always A's request and "second" always B's.
	go func() {
		r, err := b.Call(ctx, "getFiles", []any{"gidA"})
		results <- callOutcome{"A", r, err}
	}()

	var first, second pending
	select {
	case first = <-reqs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first request")
	}

	go func() {
		r, err := b.Call(ctx, "getFiles", []any{"gidB"})
		results <- callOutcome{"B", r, err}
	}()
	select {
	case second = <-reqs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second request")
	}

	// Reply to the SECOND request first, deliberately out of order.
	writeResult(t, second.conn, second.req.ID, map[string]string{"gid": "second"})
	writeResult(t, first.conn, first.req.ID, map[string]string{"gid": "first"})

	got := map[string]json.RawMessage{}
	for i := 0; i < 2; i++ {
		select {
		case o := <-results:
			if o.err != nil {
				t.Fatalf("call %s returned error: %v", o.label, o.err)
			}
			got[o.label] = o.result
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for call result")
		}
	}

	var gidA, gidB struct {
		GID string `json:"gid"`
	}
	if err := json.Unmarshal(got["A"], &gidA); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(got["B"], &gidB); err != nil {
		t.Fatal(err)
	}
	if gidA.GID != "first" {
		t.Fatalf("call A resolved to %q, want %q", gidA.GID, "first")
	}
	if gidB.GID != "second" {
		t.Fatalf("call B resolved to %q, want %q", gidB.GID, "second")
	}
}

// Property 4: when the connection drops, in-flight calls fail fast with
// ErrCallAborted instead of hanging.
func TestBridgeFailsFastOnDisconnect(t *testing.T) {
	daemon := newFakeDaemon(func(conn *websocket.Conn, req rpcRequest) {
		// Never reply; instead close the connection to simulate a drop.
		conn.Close()
	})
	defer daemon.Close()

	b := New(Config{EndpointURL: daemon.wsURL(), ReconnectBackoff: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	_, err := b.Call(ctx, "getVersion", []any{})
	if err == nil {
		t.Fatal("expected an error after the connection dropped, got nil")
	}
}

// Property 5: after a failed dial, the Bridge retries after the
// configured backoff, not immediately and not never.
func TestBridgeRetriesAfterConfiguredBackoff(t *testing.T) {
	attempts := make(chan time.Time, 8)

	// A bare TCP listener that accepts and immediately closes every
	// connection: each dial fails its WebSocket handshake, and each accept
	// marks one connect attempt.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case attempts <- time.Now():
			default:
			}
			conn.Close()
		}
	}()

	backoff := 100 * time.Millisecond
	b := New(Config{EndpointURL: "ws://" + ln.Addr().String(), ReconnectBackoff: backoff})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var first, second time.Time
	for i, dst := range []*time.Time{&first, &second} {
		select {
		case *dst = <-attempts:
		case <-time.After(backoff*5 + time.Second):
			t.Fatalf("connect attempt %d never happened", i+1)
		}
	}
	if gap := second.Sub(first); gap < backoff {
		t.Fatalf("retried faster than the configured backoff: gap=%v backoff=%v", gap, backoff)
	}
}

// Property 6: the per-connection frame reader never leaks. Each reconnect
// pushes a burst of notifications right before the connection tears down
// (no subscriber draining them), the path where an unbuffered frames
// channel could previously park the reader goroutine forever on a send
// nobody would ever receive.
func TestRunConnectionReaderDoesNotLeakAcrossReconnects(t *testing.T) {
	runtime.GC()
	before := runtime.NumGoroutine()

	daemon := newFakeDaemon(func(conn *websocket.Conn, req rpcRequest) {
		for i := 0; i < 5; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(
				`{"jsonrpc":"2.0","method":"aria2.onDownloadStart","params":[{"gid":"g"}]}`))
		}
		conn.Close()
	})
	defer daemon.Close()

	b := New(Config{EndpointURL: daemon.wsURL(), ReconnectBackoff: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	for i := 0; i < 10; i++ {
		_, _ = b.Call(ctx, "getVersion", []any{})
	}
	cancel()

	time.Sleep(100 * time.Millisecond)
	runtime.GC()
	after := runtime.NumGoroutine()
	if after > before+5 {
		t.Fatalf("goroutine count grew from %d to %d across reconnects, suspect a reader leak", before, after)
	}
}
