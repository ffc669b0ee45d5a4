package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the gorm-backed persistence layer for download history, grounded
// on the teacher's repository pattern (context-scoped *gorm.DB, sentinel
// ErrNotFound, fmt.Errorf wrapping with a package-prefixed message).
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// PageResult bundles a page of history rows with pagination metadata.
type PageResult struct {
	Items      []ItemMetaData
	Page       uint32
	PerPage    uint32
	TotalItems int64
	TotalPages uint32
}

// InsertInitial creates the initial history row for a gid the moment a
// download is accepted (spec §4.6: "insert-initial is idempotent — a
// second insert for the same gid is a no-op"). Uses ON CONFLICT DO NOTHING
// semantics via gorm's clause-free Create plus a pre-existence check, since
// ON CONFLICT is driver-specific and this keeps sqlite/postgres identical.
func (s *Store) InsertInitial(ctx context.Context, userID int64, meta ItemMetaData) error {
	meta.UserID = userID
	err := s.db.WithContext(ctx).
		Where("gid = ?", meta.GID).
		FirstOrCreate(&meta, ItemMetaData{GID: meta.GID}).Error
	if err != nil {
		return fmt.Errorf("history: insert initial: %w", err)
	}
	return nil
}

// UpsertFromDaemon reconciles a row with a freshly extracted status,
// applying the same CASE-based rules as the original SQL (spec §4.6/§9):
// the resolved name never overwrites an existing name with "<Untitled>",
// and completed_at is non-null iff status is "complete" — set once, on
// first transition to "complete" (COALESCE keeps the original timestamp
// on every later complete upsert), and cleared back to null on any
// transition away from "complete". Returns ErrNotFound if no row exists
// for gid.
func (s *Store) UpsertFromDaemon(ctx context.Context, meta ItemMetaData) (ItemMetaData, error) {
	var existing ItemMetaData
	if err := s.db.WithContext(ctx).First(&existing, "gid = ?", meta.GID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ItemMetaData{}, ErrNotFound
		}
		return ItemMetaData{}, fmt.Errorf("history: upsert: select: %w", err)
	}

	updates := map[string]any{
		"status":           meta.Status,
		"dir":              meta.Dir,
		"files":            meta.Files,
		"total_length":     meta.TotalLength,
		"completed_length": meta.CompletedLength,
		"uploaded_length":  meta.UploadedLength,
		"info_hash":        meta.InfoHash,
		"is_torrent":       meta.IsTorrent,
		"error_code":       meta.ErrorCode,
		"error_message":    meta.ErrorMessage,
	}

	if meta.Name != nil && *meta.Name != untitled {
		updates["name"] = meta.Name
	}

	if meta.Status == StatusComplete {
		if existing.CompletedAt != nil {
			updates["completed_at"] = existing.CompletedAt
		} else {
			now := time.Now()
			updates["completed_at"] = &now
		}
	} else {
		updates["completed_at"] = nil
	}

	if err := s.db.WithContext(ctx).Model(&ItemMetaData{}).Where("gid = ?", meta.GID).Updates(updates).Error; err != nil {
		return ItemMetaData{}, fmt.Errorf("history: upsert: update: %w", err)
	}

	var updated ItemMetaData
	if err := s.db.WithContext(ctx).First(&updated, "gid = ?", meta.GID).Error; err != nil {
		return ItemMetaData{}, fmt.Errorf("history: upsert: reselect: %w", err)
	}
	return updated, nil
}

// UpdateProgress writes the cheap, frequently-changing fields only (spec
// §4.8 tick loop: "fire-and-forget per-gid progress writes, must not block
// the 500ms tick on any single write").
func (s *Store) UpdateProgress(ctx context.Context, gid string, filesJSON *string, completedLength, totalLength, uploadedLength string) error {
	err := s.db.WithContext(ctx).Model(&ItemMetaData{}).Where("gid = ?", gid).Updates(map[string]any{
		"files":            filesJSON,
		"completed_length": completedLength,
		"total_length":     totalLength,
		"uploaded_length":  uploadedLength,
	}).Error
	if err != nil {
		return fmt.Errorf("history: update progress: %w", err)
	}
	return nil
}

// SelectActiveGids returns (gid, user_id) pairs for every row currently
// marked active, the working set for the 500ms tick (spec §4.8).
func (s *Store) SelectActiveGids(ctx context.Context) ([]GidRow, error) {
	var rows []GidRow
	err := s.db.WithContext(ctx).Model(&ItemMetaData{}).
		Where("status = ?", StatusActive).
		Select("gid", "user_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history: select active gids: %w", err)
	}
	return rows, nil
}

// SelectReconcilableGids returns every gid not already in a terminal,
// file-confirmed-gone state, the working set for sync_init (spec §4.7).
func (s *Store) SelectReconcilableGids(ctx context.Context) ([]GidRow, error) {
	var rows []GidRow
	statuses := []GidStatus{StatusActive, StatusWaiting, StatusPaused, StatusStopped, StatusComplete, StatusError}
	err := s.db.WithContext(ctx).Model(&ItemMetaData{}).
		Where("status IN ?", statuses).
		Select("gid", "user_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history: select reconcilable gids: %w", err)
	}
	return rows, nil
}

// MarkSessionLost flags a gid the daemon no longer knows about (aria2
// error code 1 from system.multicall) as an error row with error_code 1 and
// error_message "Session lost" (spec §4.7). Error rows remain in the
// SelectReconcilableGids set.
func (s *Store) MarkSessionLost(ctx context.Context, gid string) error {
	code := int64(1)
	msg := "Session lost"
	err := s.db.WithContext(ctx).Model(&ItemMetaData{}).Where("gid = ?", gid).Updates(map[string]any{
		"status":        StatusError,
		"error_code":    &code,
		"error_message": &msg,
	}).Error
	if err != nil {
		return fmt.Errorf("history: mark session lost: %w", err)
	}
	return nil
}

// ListForUser returns a page of a single user's history, most recent first.
func (s *Store) ListForUser(ctx context.Context, userID int64, page, limit uint32) (PageResult, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	if err := s.db.WithContext(ctx).Model(&ItemMetaData{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return PageResult{}, fmt.Errorf("history: list count: %w", err)
	}

	var items []ItemMetaData
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(int(limit)).
		Offset(int(offset)).
		Find(&items).Error
	if err != nil {
		return PageResult{}, fmt.Errorf("history: list: %w", err)
	}

	totalPages := uint32(0)
	if limit > 0 {
		totalPages = uint32((total + int64(limit) - 1) / int64(limit))
	}

	return PageResult{Items: items, Page: page, PerPage: limit, TotalItems: total, TotalPages: totalPages}, nil
}

// GetForDelete fetches the dir/name pair needed to best-effort clean up
// on-disk files before the row itself is removed (spec §4.6, MODULE
// ADDITIONS: "best-effort 3-way file deletion on delete_history").
func (s *Store) GetForDelete(ctx context.Context, gid string, userID int64) (dir, name string, err error) {
	var row ItemMetaData
	err = s.db.WithContext(ctx).Where("gid = ? AND user_id = ?", gid, userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("history: get for delete: %w", err)
	}
	if row.Dir != nil {
		dir = *row.Dir
	}
	if row.Name != nil {
		name = *row.Name
	}
	return dir, name, nil
}

// DeleteForUser removes a gid's history row, scoped to the owning user so
// one user can never delete another's history.
func (s *Store) DeleteForUser(ctx context.Context, gid string, userID int64) error {
	result := s.db.WithContext(ctx).Where("gid = ? AND user_id = ?", gid, userID).Delete(&ItemMetaData{})
	if result.Error != nil {
		return fmt.Errorf("history: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AutoMigrate creates/updates the download_history table. Exposed as a
// standalone step (rather than baked into NewStore) because schema
// management here is a model-driven AutoMigrate, not the SQL migration
// runner the teacher uses elsewhere — the distinction is deliberate: this
// bridge's sole table has no migration history to preserve.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ItemMetaData{}); err != nil {
		return fmt.Errorf("history: automigrate: %w", err)
	}
	return nil
}
