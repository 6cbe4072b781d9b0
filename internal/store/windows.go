package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// WindowRepo persists daily windows keyed by their exact time range.
type WindowRepo struct {
	store *Store
}

var _ ports.WindowRepository = (*WindowRepo)(nil)

// GetOrCreate atomically resolves the window for (startAt, endAt).
// Concurrent callers converge on the same row via a conflict-tolerant
// insert followed by a re-select.
func (r *WindowRepo) GetOrCreate(ctx context.Context, startAt, endAt time.Time) (domain.Window, error) {
	query, args, err := r.store.builder.
		Insert("windows").
		Columns("start_at", "end_at", "status", "created_at").
		Values(startAt.Unix(), endAt.Unix(), string(domain.WindowNew), time.Now().Unix()).
		Suffix("ON CONFLICT (start_at, end_at) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Window{}, fmt.Errorf("build window insert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Window{}, fmt.Errorf("insert window: %w", err)
	}

	window, err := r.GetByRange(ctx, startAt, endAt)
	if err != nil {
		return domain.Window{}, err
	}
	if window == nil {
		return domain.Window{}, fmt.Errorf("window vanished after insert: %s..%s", startAt, endAt)
	}
	return *window, nil
}

// GetByRange returns the window for the exact range or nil.
func (r *WindowRepo) GetByRange(ctx context.Context, startAt, endAt time.Time) (*domain.Window, error) {
	query, args, err := r.store.builder.
		Select("id", "start_at", "end_at", "status", "created_at").
		From("windows").
		Where(sq.Eq{"start_at": startAt.Unix(), "end_at": endAt.Unix()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build window select: %w", err)
	}

	var (
		window                     domain.Window
		startUnix, endUnix, crUnix int64
		status                     string
	)
	row := r.store.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&window.ID, &startUnix, &endUnix, &status, &crUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan window: %w", err)
	}

	window.StartAt = time.Unix(startUnix, 0).UTC()
	window.EndAt = time.Unix(endUnix, 0).UTC()
	window.Status = domain.WindowStatus(status)
	window.CreatedAt = time.Unix(crUnix, 0).UTC()
	return &window, nil
}

// SetStatus writes the status unconditionally. Transition ordering is
// the orchestrator's responsibility, not the store's.
func (r *WindowRepo) SetStatus(ctx context.Context, windowID int64, status domain.WindowStatus) error {
	query, args, err := r.store.builder.
		Update("windows").
		Set("status", string(status)).
		Where(sq.Eq{"id": windowID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set window %d status %s: %w", windowID, status, err)
	}
	return nil
}
