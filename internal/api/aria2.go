package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/bridge"
	"github.com/tribhuwan-kumar/silly/internal/history"
)

// Aria2Handlers adapts the Call Façade to HTTP, grounded on
// original_source/silly's aria2/proxy.rs: every handler here is a thin
// shape translation over one Bridge call, nothing more.
type Aria2Handlers struct {
	bridge *bridge.Bridge
	store  *history.Store
	logger *zap.Logger
}

func NewAria2Handlers(br *bridge.Bridge, store *history.Store, logger *zap.Logger) *Aria2Handlers {
	return &Aria2Handlers{bridge: br, store: store, logger: logger.Named("api.aria2")}
}

type addURIsRequest struct {
	URIs    []string       `json:"uris"`
	Options map[string]any `json:"options"`
}

// AddURIs converts a batch of URIs into one system.multicall of addUri
// calls and inserts an initial history row per resulting gid.
func (h *Aria2Handlers) AddURIs(w http.ResponseWriter, r *http.Request) {
	var req addURIsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.URIs) == 0 {
		ErrBadRequest(w, "uris must not be empty")
		return
	}
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		ErrUnauthorized(w)
		return
	}

	options := req.Options
	if options == nil {
		options = map[string]any{}
	}

	calls := make([]bridge.MulticallCall, len(req.URIs))
	for i, uri := range req.URIs {
		calls[i] = bridge.MulticallCall{Method: "addUri", Params: []any{[]any{uri}, options}}
	}

	results, err := h.bridge.Multicall(r.Context(), calls)
	if err != nil {
		ErrBadGateway(w, err.Error())
		return
	}

	for i, raw := range results {
		success, ok := bridge.MulticallSuccess(raw)
		if !ok {
			continue
		}
		var gid string
		if err := json.Unmarshal(success, &gid); err != nil || gid == "" {
			continue
		}
		h.recordInitialHistory(r, gid, userID, &req.URIs[i])
	}

	Ok(w, map[string]any{"results": results})
}

type addTorrentsItem struct {
	Torrent string         `json:"torrent"`
	Options map[string]any `json:"options"`
}

type addTorrentsRequest struct {
	Torrents []addTorrentsItem `json:"torrents"`
}

// AddTorrents batches base64-encoded torrent files into one
// system.multicall of addTorrent calls (spec MODULE ADDITIONS).
func (h *Aria2Handlers) AddTorrents(w http.ResponseWriter, r *http.Request) {
	var req addTorrentsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Torrents) == 0 {
		ErrBadRequest(w, "no torrents provided")
		return
	}
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		ErrUnauthorized(w)
		return
	}

	calls := make([]bridge.MulticallCall, len(req.Torrents))
	for i, item := range req.Torrents {
		options := item.Options
		if options == nil {
			options = map[string]any{}
		}
		calls[i] = bridge.MulticallCall{Method: "addTorrent", Params: []any{item.Torrent, []any{}, options}}
	}

	results, err := h.bridge.Multicall(r.Context(), calls)
	if err != nil {
		ErrBadGateway(w, err.Error())
		return
	}

	for _, raw := range results {
		success, ok := bridge.MulticallSuccess(raw)
		if !ok {
			continue
		}
		var gid string
		if err := json.Unmarshal(success, &gid); err != nil || gid == "" {
			continue
		}
		h.recordInitialHistory(r, gid, userID, nil)
	}

	Ok(w, map[string]any{"results": results})
}

type addTorrentRequest struct {
	Torrent string         `json:"torrent"`
	Options map[string]any `json:"options"`
}

// AddTorrent is the deprecated single-torrent endpoint, kept for backward
// compatibility (spec MODULE ADDITIONS). Prefer AddTorrents.
func (h *Aria2Handlers) AddTorrent(w http.ResponseWriter, r *http.Request) {
	var req addTorrentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	torrentBytes, err := base64.StdEncoding.DecodeString(req.Torrent)
	if err != nil || len(torrentBytes) == 0 {
		ErrBadRequest(w, "torrent must be base64-encoded file content")
		return
	}

	raw, err := h.bridge.AddTorrent(r.Context(), req.Torrent, req.Options)
	if err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	var gid string
	_ = json.Unmarshal(raw, &gid)

	if userID, ok := userIDFromCtx(r.Context()); ok && gid != "" {
		h.recordInitialHistory(r, gid, userID, nil)
	}

	Ok(w, map[string]any{"gid": gid})
}

// recordInitialHistory fetches the fresh tellStatus for gid and inserts the
// initial history row, best-effort — a failure here never fails the
// originating add request (spec §4.6: "insert history after accept").
func (h *Aria2Handlers) recordInitialHistory(r *http.Request, gid string, userID int64, sourceURI *string) {
	raw, err := h.bridge.TellStatus(r.Context(), gid)
	if err != nil {
		h.logger.Warn("failed to fetch status for new gid", zap.String("gid", gid), zap.Error(err))
		raw = []byte(`{}`)
	}
	meta := history.Extract(h.logger, raw, gid)
	if sourceURI != nil && meta.SourceURI == nil {
		meta.SourceURI = sourceURI
	}
	if err := h.store.InsertInitial(r.Context(), userID, meta); err != nil {
		h.logger.Error("failed to insert initial history", zap.String("gid", gid), zap.Error(err))
	}
}

type gidRequest struct {
	GID string `json:"gid"`
}

func (h *Aria2Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	var req gidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.bridge.Pause(r.Context(), req.GID); err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]string{"status": "paused"})
}

func (h *Aria2Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	var req gidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.bridge.Resume(r.Context(), req.GID); err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]string{"status": "resumed"})
}

// Remove force-removes an active/waiting download (spec §4.9). Freeing the
// daemon's in-memory result for a finished download is a separate call —
// see Purge/RemoveDownloadResult, invoked by history deletion.
func (h *Aria2Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	var req gidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.bridge.Remove(r.Context(), req.GID); err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]string{"status": "removed"})
}

func (h *Aria2Handlers) Details(w http.ResponseWriter, r *http.Request) {
	var req gidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := h.bridge.Details(r.Context(), req.GID)
	if err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, results)
}

// Purge clears completed/error/removed results from the daemon's
// in-memory history. Takes no request body (spec MODULE ADDITIONS).
func (h *Aria2Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bridge.PurgeDownloadResult(r.Context()); err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]string{"status": "purged"})
}

type moveRequest struct {
	GID string `json:"gid"`
	Pos int    `json:"pos"`
	How string `json:"how"`
}

func (h *Aria2Handlers) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	raw, err := h.bridge.ChangePosition(r.Context(), req.GID, req.Pos, req.How)
	if err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]any{"newPosition": raw})
}

type globalOptionRequest struct {
	Options map[string]any `json:"options"`
}

func (h *Aria2Handlers) ChangeGlobalOption(w http.ResponseWriter, r *http.Request) {
	var req globalOptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.bridge.ChangeGlobalOption(r.Context(), req.Options); err != nil {
		ErrBadGateway(w, err.Error())
		return
	}
	Ok(w, map[string]string{"status": "ok"})
}
