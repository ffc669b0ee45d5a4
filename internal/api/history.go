package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/bridge"
	"github.com/tribhuwan-kumar/silly/internal/history"
)

// HistoryHandlers adapts the History Store to HTTP, grounded on
// original_source/silly's his.rs get_history/delete_history handlers.
type HistoryHandlers struct {
	store  *history.Store
	bridge *bridge.Bridge
	logger *zap.Logger
}

func NewHistoryHandlers(store *history.Store, br *bridge.Bridge, logger *zap.Logger) *HistoryHandlers {
	return &HistoryHandlers{store: store, bridge: br, logger: logger.Named("api.history")}
}

// GetHistory returns a paginated page of the caller's download history
// (spec §4.6).
func (h *HistoryHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		ErrUnauthorized(w)
		return
	}

	page := parseUintQuery(r, "page", 1)
	limit := parseUintQuery(r, "limit", 20)

	result, err := h.store.ListForUser(r.Context(), userID, page, limit)
	if err != nil {
		h.logger.Error("list history failed", zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, map[string]any{
		"data": result.Items,
		"meta": map[string]any{
			"currentPage": result.Page,
			"perPage":     result.PerPage,
			"totalItems":  result.TotalItems,
			"totalPages":  result.TotalPages,
		},
	})
}

type deleteHistoryRequest struct {
	GIDs       []string `json:"gids"`
	DeleteFile bool     `json:"delete_file"`
}

// DeleteHistory removes the caller's history rows for the given gids, and
// on request, best-effort deletes the on-disk content too (spec MODULE
// ADDITIONS: "best-effort 3-way file deletion on delete_history" — the
// download's directory, its single file, and its .aria2 control file are
// all attempted and none of the three failing blocks the others).
func (h *HistoryHandlers) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		ErrUnauthorized(w)
		return
	}

	var req deleteHistoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	for _, gid := range req.GIDs {
		if req.DeleteFile {
			if dir, name, err := h.store.GetForDelete(r.Context(), gid, userID); err == nil && dir != "" && name != "" {
				path := filepath.Join(dir, name)
				_ = os.RemoveAll(path)
				_ = os.Remove(path)
				_ = os.Remove(path + ".aria2")
			}
		}

		if err := h.store.DeleteForUser(r.Context(), gid, userID); err != nil {
			h.logger.Warn("delete history row failed", zap.String("gid", gid), zap.Error(err))
		}

		// Free aria2's in-memory result regardless of local deletion outcome.
		if _, err := h.bridge.RemoveDownloadResult(r.Context(), gid); err != nil {
			h.logger.Debug("remove download result failed", zap.String("gid", gid), zap.Error(err))
		}
	}

	Ok(w, map[string]bool{"success": true})
}

func parseUintQuery(r *http.Request, key string, fallback uint32) uint32 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return fallback
	}
	return uint32(n)
}
