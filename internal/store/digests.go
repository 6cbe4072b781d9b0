package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aidigest/internal/domain"
	"aidigest/internal/ports"

	"time"
)

// DigestRepo persists the published digest, one per window.
type DigestRepo struct {
	store *Store
}

var _ ports.DigestRepository = (*DigestRepo)(nil)

// GetByWindow returns the digest for the window or nil.
func (r *DigestRepo) GetByWindow(ctx context.Context, windowID int64) (*domain.Digest, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT id, window_id, channel_id, message_ids, content, stats, published_at
		 FROM digests WHERE window_id = ?`, windowID)

	var (
		digest    domain.Digest
		idsJSON   string
		statsJSON string
		pubUnix   sql.NullInt64
	)
	if err := row.Scan(&digest.ID, &digest.WindowID, &digest.ChannelID,
		&idsJSON, &digest.Content, &statsJSON, &pubUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get digest for window %d: %w", windowID, err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &digest.MessageIDs); err != nil {
		return nil, fmt.Errorf("decode message ids: %w", err)
	}
	if statsJSON != "" {
		if err := json.Unmarshal([]byte(statsJSON), &digest.Stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
	}
	if pubUnix.Valid {
		at := time.Unix(pubUnix.Int64, 0).UTC()
		digest.PublishedAt = &at
	}
	return &digest, nil
}

// Upsert writes the digest for its window, replacing any previous row.
func (r *DigestRepo) Upsert(ctx context.Context, digest domain.Digest) (domain.Digest, error) {
	ids := digest.MessageIDs
	if ids == nil {
		ids = []int64{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("encode message ids: %w", err)
	}
	stats := digest.Stats
	if stats == nil {
		stats = map[string]int{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("encode stats: %w", err)
	}

	var publishedAt any
	if digest.PublishedAt != nil {
		publishedAt = digest.PublishedAt.Unix()
	}

	query, args, err := r.store.builder.
		Insert("digests").
		Columns("window_id", "channel_id", "message_ids", "content", "stats", "published_at").
		Values(digest.WindowID, digest.ChannelID, string(idsJSON), digest.Content,
			string(statsJSON), publishedAt).
		Suffix(`ON CONFLICT (window_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			message_ids = excluded.message_ids,
			content = excluded.content,
			stats = excluded.stats,
			published_at = excluded.published_at`).
		ToSql()
	if err != nil {
		return domain.Digest{}, fmt.Errorf("build digest upsert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Digest{}, fmt.Errorf("upsert digest for window %d: %w", digest.WindowID, err)
	}

	saved, err := r.GetByWindow(ctx, digest.WindowID)
	if err != nil {
		return domain.Digest{}, err
	}
	if saved == nil {
		return domain.Digest{}, fmt.Errorf("digest vanished after upsert: window %d", digest.WindowID)
	}
	return *saved, nil
}
