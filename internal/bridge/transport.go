// Package bridge implements the Aria2 Bridge: the subsystem that owns the
// single multiplexed JSON-RPC-over-WebSocket connection to the aria2
// daemon, correlates requests to responses, injects the auth token, fans
// notifications out to subscribers, and publishes connectivity state.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// commandQueueCapacity bounds the outbound command channel (spec §5:
	// "capacity 32; callers block when full").
	commandQueueCapacity = 32

	// defaultReconnectBackoff is the fixed delay between failed connect
	// attempts (spec §4.1: "sleep 10s, retry").
	defaultReconnectBackoff = 10 * time.Second
)

// command is a queued outbound call awaiting dispatch on the wire.
type command struct {
	method string
	params []any
	reply  chan callResult
}

// Config holds the dependencies required to construct a Bridge.
type Config struct {
	// EndpointURL is the daemon's WebSocket JSON-RPC URL (ws:// or wss://).
	EndpointURL string
	// Secret is the optional token string injected into outgoing calls.
	Secret string
	// Version is reported in SysStatus.
	Version string

	Logger     *zap.Logger
	Registerer prometheus.Registerer

	// EventBusCapacity overrides the Event Bus buffer size. Defaults to 100.
	EventBusCapacity int

	// ReconnectBackoff overrides the delay between failed connect attempts.
	// Defaults to 10s (spec §4.1). Exposed for tests; production wiring
	// should leave this zero.
	ReconnectBackoff time.Duration
}

// Bridge owns the connection lifecycle, the correlator's pending table,
// the Event Bus, and the Status Watch. Construct with New and start the
// connection loop with Run.
type Bridge struct {
	endpointURL string
	secret      string

	nextID  uint64
	pending *pendingTable

	commands chan command
	stopped  chan struct{}

	events           *EventBus
	status           *StatusWatch
	logger           *zap.Logger
	metrics          *metrics
	reconnectBackoff time.Duration
}

// New constructs a Bridge. Call Run in its own goroutine to start the
// connection loop. Calls made while no connection is up (including before
// Run has been started) do not fail: they wait in the command queue until
// a connection is made or their ctx ends.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	capacity := cfg.EventBusCapacity
	if capacity <= 0 {
		capacity = 100
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	backoff := cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}

	return &Bridge{
		endpointURL:      cfg.EndpointURL,
		secret:           cfg.Secret,
		pending:          newPendingTable(),
		commands:         make(chan command, commandQueueCapacity),
		stopped:          make(chan struct{}),
		events:           NewEventBus(capacity, logger.Named("eventbus")),
		status:           NewStatusWatch(SysStatus{Version: cfg.Version}),
		logger:           logger.Named("bridge"),
		metrics:          newMetrics(reg),
		reconnectBackoff: backoff,
	}
}

// Events returns the Event Bus that daemon notifications are published on.
func (b *Bridge) Events() *EventBus { return b.events }

// Status returns the Status Watch tracking daemon connectivity.
func (b *Bridge) Status() *StatusWatch { return b.status }

// Run drives the connection lifecycle loop until ctx is done (spec §4.1):
// disconnected -> connect -> frame loop -> (on loss) disconnected -> retry.
// It blocks; callers should run it in its own goroutine.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.stopped)

	for {
		if ctx.Err() != nil {
			return
		}

		b.status.SetAlive(false)
		b.metrics.connected.Set(0)
		b.metrics.reconnects.Inc()

		b.logger.Info("connecting to aria2 daemon", zap.String("url", b.endpointURL))
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.endpointURL, nil)
		if err != nil {
			b.logger.Error("failed to connect to aria2 daemon, retrying", zap.Error(err), zap.Duration("backoff", b.reconnectBackoff))
			select {
			case <-time.After(b.reconnectBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		b.logger.Info("connected to aria2 daemon")
		b.status.SetAlive(true)
		b.metrics.connected.Set(1)

		b.runConnection(ctx, conn)

		// The connection ended (error, close, or ctx cancellation). All
		// in-flight calls observe disconnect (spec §4.1).
		b.pending.dropAll(ErrCallAborted)
		b.metrics.pendingCalls.Set(0)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
	}
}

// runConnection owns the live socket for as long as it stays open: it is
// the single goroutine multiplexing outbound commands and inbound frames
// (spec §5: "Transport/correlator loop — exclusive writer to pending;
// exclusive reader/writer of the WebSocket").
func (b *Bridge) runConnection(ctx context.Context, conn *websocket.Conn) {
	// frames is buffered so the reader never blocks handing off a decoded
	// frame to a select loop that has already moved on; readerDone is the
	// abort signal for the case the buffer is also full when this function
	// returns (write/dispatch error or ctx.Done), so the reader goroutine
	// never leaks parked on a send nobody will ever receive.
	frames := make(chan []byte, commandQueueCapacity)
	readErrs := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		defer close(frames)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			// Binary/ping/pong frames are ignored (spec §4.1); gorilla
			// handles ping/pong control frames internally, so only text
			// vs binary remains our concern here.
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case frames <- data:
			case <-readerDone:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-b.commands:
			if err := b.dispatch(conn, cmd); err != nil {
				b.logger.Error("failed to send frame to aria2 daemon", zap.Error(err))
				cmd.reply <- callResult{err: ErrCallAborted}
				return
			}

		case data, ok := <-frames:
			if !ok {
				return
			}
			b.handleFrame(data)

		case err := <-readErrs:
			b.logger.Warn("aria2 daemon connection closed", zap.Error(err))
			return
		}
	}
}

// dispatch assigns an id, injects the token, prefixes the method, stores
// the reply slot, and writes the frame (spec §4.2).
func (b *Bridge) dispatch(conn *websocket.Conn, cmd command) error {
	id := atomic.AddUint64(&b.nextID, 1)
	idStr := strconv.FormatUint(id, 10)

	params := injectToken(cmd.method, cmd.params, b.secret)

	method := cmd.method
	if !strings.HasPrefix(method, "system.") {
		method = "aria2." + method
	}

	req := rpcRequest{ID: idStr, JSONRPC: "2.0", Method: method, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("bridge: encode request: %w", err)
	}

	b.pending.store(idStr, cmd.reply)
	b.metrics.pendingCalls.Set(float64(b.pending.len()))

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.pending.take(idStr)
		return err
	}
	return nil
}

// handleFrame decodes one inbound frame and routes it per spec §4.2.
// Frames that parse as neither a correlated response nor a notification
// are dropped silently (ProtocolError, logged only).
func (b *Bridge) handleFrame(data []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		b.logger.Debug("dropped frame: not a valid JSON-RPC envelope", zap.Error(err))
		return
	}

	if resp.ID != nil {
		ch, ok := b.pending.take(*resp.ID)
		b.metrics.pendingCalls.Set(float64(b.pending.len()))
		if !ok {
			b.logger.Debug("dropped response for unknown id", zap.String("id", *resp.ID))
			return
		}
		switch {
		case resp.Error != nil:
			b.metrics.callsTotal.WithLabelValues("", "daemon_error").Inc()
			ch <- callResult{err: fmt.Errorf("%w: %s", ErrDaemonError, resp.Error.String())}
		case resp.Result != nil:
			b.metrics.callsTotal.WithLabelValues("", "ok").Inc()
			ch <- callResult{result: resp.Result}
		default:
			// Neither result nor error present on a correlated response —
			// treat as an empty success to avoid leaving the waiter hung.
			ch <- callResult{result: json.RawMessage("null")}
		}
		return
	}

	if resp.Method != nil {
		b.events.Publish(Notification{Method: *resp.Method, Params: resp.Params, Raw: data})
		return
	}

	b.logger.Debug("dropped frame: neither id nor method present")
}
