package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/bridge"
	"github.com/tribhuwan-kumar/silly/internal/history"
	"github.com/tribhuwan-kumar/silly/internal/wsutil"
)

// WSHandlers upgrades the three browser-facing sockets this bridge serves:
// daemon connectivity status, raw aria2 events, and per-user download
// history — grounded on original_source/silly's api.rs status_ws/event_ws/
// history_ws trio.
type WSHandlers struct {
	bridge *bridge.Bridge
	hub    *HistoryHub
	logger *zap.Logger
}

func NewWSHandlers(br *bridge.Bridge, hub *HistoryHub, logger *zap.Logger) *WSHandlers {
	return &WSHandlers{bridge: br, hub: hub, logger: logger.Named("api.ws")}
}

// Status streams the Status Watch: the current value immediately, then
// every subsequent change (spec §4.5).
func (h *WSHandlers) Status(w http.ResponseWriter, r *http.Request) {
	client, err := wsutil.Upgrade(w, r, h.logger, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates := h.bridge.Status().Watch(ctx)

	go func() {
		defer close(client.Send)
		for {
			select {
			case <-ctx.Done():
				return
			case status, ok := <-updates:
				if !ok {
					return
				}
				select {
				case client.Send <- status:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	client.Run()
}

// Event streams every raw daemon notification verbatim, with no per-user
// filtering — this is the same firehose every Event Bus subscriber sees
// (spec §4.4).
func (h *WSHandlers) Event(w http.ResponseWriter, r *http.Request) {
	subID, notifications := h.bridge.Events().Subscribe()
	client, err := wsutil.Upgrade(w, r, h.logger, func() { h.bridge.Events().Unsubscribe(subID) })
	if err != nil {
		h.bridge.Events().Unsubscribe(subID)
		return
	}

	go func() {
		defer close(client.Send)
		for n := range notifications {
			select {
			// Forward the daemon's frame verbatim, matching
			// original_source/silly's event handler forwarding the raw
			// Aria2JsonRpcResp straight through.
			case client.Send <- json.RawMessage(n.Raw):
			default:
				// A slow browser socket must never block notification fan-out;
				// drop rather than stall (spec §4.4).
			}
		}
	}()

	client.Run()
}

// History streams Tick/Event messages scoped to the authenticated user
// (spec §4.8, original_source/silly's history_ws).
func (h *WSHandlers) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		ErrUnauthorized(w)
		return
	}

	subID, messages := h.hub.Subscribe(userID)
	client, err := wsutil.Upgrade(w, r, h.logger, func() { h.hub.Unsubscribe(subID) })
	if err != nil {
		h.hub.Unsubscribe(subID)
		return
	}

	go func() {
		defer close(client.Send)
		for msg := range messages {
			select {
			case client.Send <- msg:
			default:
			}
		}
	}()

	client.Run()
}

// HistoryHub fans history.Message values out to per-user subscribers —
// the publish side the History Projector feeds and WSHandlers.History
// consumes. Kept distinct from the Event Bus because history messages
// must be filtered by owning user before delivery, not broadcast to
// everyone.
type HistoryHub struct {
	mu     sync.RWMutex
	subs   map[int]sub
	nextID int
}

type sub struct {
	userID int64
	ch     chan history.Message
}

func NewHistoryHub() *HistoryHub {
	return &HistoryHub{subs: make(map[int]sub)}
}

// Subscribe registers a new listener scoped to userID.
func (h *HistoryHub) Subscribe(userID int64) (int, <-chan history.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan history.Message, 32)
	h.subs[id] = sub{userID: userID, ch: ch}
	return id, ch
}

// Unsubscribe removes and closes a listener's channel.
func (h *HistoryHub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		close(s.ch)
		delete(h.subs, id)
	}
}

// Publish fans out msg to every subscriber owned by msg's user, dropping
// (never blocking) on a full subscriber buffer.
func (h *HistoryHub) Publish(msg history.Message) {
	owner := history.UserID(msg)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.userID != owner {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}
