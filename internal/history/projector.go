package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/bridge"
)

const (
	// reconcileChunkSize bounds each system.multicall batch during sync_init
	// to avoid daemon-side RPC timeouts on large histories (spec §4.7).
	reconcileChunkSize = 100

	// tickInterval is the cadence of the active-download progress sweep
	// (spec §4.8).
	tickInterval = 500 * time.Millisecond

	// aria2SessionLostCode is the daemon's error code for a gid it no
	// longer recognizes (purged from memory, or never existed).
	aria2SessionLostCode = 1
)

// Projector is the History Projector (spec §4.7/§4.8): it reconciles the
// store against the daemon on startup, keeps rows fresh as aria2.on*
// notifications arrive, and sweeps active downloads for progress on a
// fixed tick. Publish delivers Message values for browser-facing sockets.
type Projector struct {
	store   *Store
	bridge  *bridge.Bridge
	logger  *zap.Logger
	publish func(Message)

	scheduler gocron.Scheduler
}

// NewProjector wires a Projector. publish is called for every Tick/Event
// message the projector produces; callers typically fan it out to
// per-user websocket subscribers.
func NewProjector(store *Store, br *bridge.Bridge, logger *zap.Logger, publish func(Message)) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, bridge: br, logger: logger.Named("history_projector"), publish: publish}
}

// Start runs sync_init once, then launches the event-driven refresh
// listener and the 500ms tick job. It returns once both are running;
// callers should hold onto the Projector and call Stop on shutdown.
func (p *Projector) Start(ctx context.Context) error {
	p.SyncInit(ctx)

	go p.runEventListener(ctx)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("history: create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(tickInterval),
		gocron.NewTask(func() { p.tick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("history: schedule tick job: %w", err)
	}
	sched.Start()
	p.scheduler = sched

	p.logger.Info("history projector started")
	return nil
}

// Stop shuts down the tick scheduler. The event listener goroutine exits
// on its own once ctx (passed to Start) is done.
func (p *Projector) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	if err := p.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("history: scheduler shutdown: %w", err)
	}
	return nil
}

// SyncInit reconciles every non-terminal row against the daemon's current
// view in batches of reconcileChunkSize (spec §4.7). Rows the daemon no
// longer recognizes (error code 1) are marked error; error rows stay in the
// reconcilable set, so the next SyncInit checks them again.
func (p *Projector) SyncInit(ctx context.Context) {
	rows, err := p.store.SelectReconcilableGids(ctx)
	if err != nil {
		p.logger.Error("sync_init: failed to load reconcilable gids", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		p.logger.Info("sync_init: no pending downloads to sync")
		return
	}
	p.logger.Info("sync_init: checking pending downloads", zap.Int("count", len(rows)))

	for start := 0; start < len(rows); start += reconcileChunkSize {
		end := start + reconcileChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		p.syncChunk(ctx, rows[start:end])
	}

	p.logger.Info("sync_init: complete")
}

func (p *Projector) syncChunk(ctx context.Context, chunk []GidRow) {
	calls := make([]bridge.MulticallCall, len(chunk))
	for i, row := range chunk {
		calls[i] = bridge.MulticallCall{Method: "tellStatus", Params: []any{row.GID}}
	}

	results, err := p.bridge.Multicall(ctx, calls)
	if err != nil {
		p.logger.Error("sync_init: chunk failed", zap.Error(err))
		return
	}

	for i, raw := range results {
		gid := chunk[i].GID

		if success, ok := bridge.MulticallSuccess(raw); ok {
			meta := Extract(p.logger, success, gid)
			p.upsert(ctx, meta)
			continue
		}

		if rpcErr, ok := bridge.MulticallError(raw); ok {
			if rpcErr.Code == aria2SessionLostCode {
				p.logger.Warn("sync_init: gid not found in aria2, marking error", zap.String("gid", gid))
				if err := p.store.MarkSessionLost(ctx, gid); err != nil {
					p.logger.Error("sync_init: failed to mark session lost", zap.String("gid", gid), zap.Error(err))
				}
				continue
			}
			p.logger.Error("sync_init: aria2 error for gid", zap.String("gid", gid), zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
			continue
		}

		p.logger.Error("sync_init: malformed multicall entry", zap.String("gid", gid))
	}
}

// runEventListener subscribes to the Event Bus and refreshes the
// corresponding row on every aria2.on* notification (spec §4.7).
func (p *Projector) runEventListener(ctx context.Context) {
	id, ch := p.bridge.Events().Subscribe()
	defer p.bridge.Events().Unsubscribe(id)

	p.logger.Info("history event listener started")
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if len(n.Method) < 8 || n.Method[:8] != "aria2.on" {
				continue
			}
			gid, ok := n.GID()
			if !ok {
				p.logger.Warn("received aria2 event without an extractable gid", zap.String("method", n.Method))
				continue
			}
			p.refreshGid(ctx, gid)
		}
	}
}

func (p *Projector) refreshGid(ctx context.Context, gid string) {
	p.logger.Debug("refreshing gid", zap.String("gid", gid))
	raw, err := p.bridge.TellStatus(ctx, gid)
	if err != nil {
		p.logger.Warn("refresh_gid: tellStatus failed", zap.String("gid", gid), zap.Error(err))
		return
	}
	meta := Extract(p.logger, raw, gid)
	p.upsert(ctx, meta)
}

func (p *Projector) upsert(ctx context.Context, meta ItemMetaData) {
	updated, err := p.store.UpsertFromDaemon(ctx, meta)
	if err != nil {
		if err == ErrNotFound {
			p.logger.Warn("received aria2 update for unknown gid", zap.String("gid", meta.GID))
			return
		}
		p.logger.Error("upsert failed", zap.String("gid", meta.GID), zap.Error(err))
		return
	}
	if p.publish != nil {
		p.publish(NewEvent(updated.UserID, updated))
	}
}

// tick is the 500ms reconciliation sweep over active downloads (spec
// §4.8). Per-gid progress writes are fired off without waiting for them,
// so one slow write can never stall the tick.
func (p *Projector) tick(ctx context.Context) {
	globalRaw, err := p.bridge.GetGlobalStat(ctx)
	if err != nil {
		return
	}
	var global GlobalStat
	if err := json.Unmarshal(globalRaw, &global); err != nil {
		global = GlobalStat{}
	}

	activeRows, err := p.store.SelectActiveGids(ctx)
	if err != nil {
		p.logger.Error("tick: failed to load active gids", zap.Error(err))
		return
	}
	if len(activeRows) == 0 {
		return
	}

	calls := make([]bridge.MulticallCall, len(activeRows))
	for i, row := range activeRows {
		calls[i] = bridge.MulticallCall{Method: "tellStatus", Params: []any{row.GID}}
	}

	results, err := p.bridge.Multicall(ctx, calls)
	if err != nil {
		return
	}

	updatesByUser := make(map[int64][]Aria2Status)
	for i, raw := range results {
		success, ok := bridge.MulticallSuccess(raw)
		if !ok {
			continue
		}
		var status Aria2Status
		if err := json.Unmarshal(success, &status); err != nil {
			continue
		}
		row := activeRows[i]
		updatesByUser[row.UserID] = append(updatesByUser[row.UserID], status)

		go p.updateProgress(row.GID, status)
	}

	if p.publish == nil {
		return
	}
	for userID, tasks := range updatesByUser {
		p.publish(NewTick(userID, global, tasks))
	}
}

func (p *Projector) updateProgress(gid string, status Aria2Status) {
	filePaths := make([]string, 0, len(status.Files))
	for _, f := range status.Files {
		if f.Path != "" {
			filePaths = append(filePaths, f.Path)
		}
	}
	filesJSON := encodeFiles(filePaths)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.UpdateProgress(ctx, gid, filesJSON, status.CompletedLength, status.TotalLength, status.UploadLength); err != nil {
		p.logger.Warn("tick: progress write failed", zap.String("gid", gid), zap.Error(err))
	}
}
