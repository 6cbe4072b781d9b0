package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// ChannelRepo manages tracked source channels.
type ChannelRepo struct {
	store *Store
}

var _ ports.ChannelRepository = (*ChannelRepo)(nil)

const channelColumns = "id, peer_id, username, title, is_active, added_at, last_fetched_at"

// Upsert inserts or refreshes a channel keyed by its peer id.
func (r *ChannelRepo) Upsert(ctx context.Context, channel domain.Channel) (domain.Channel, error) {
	query, args, err := r.store.builder.
		Insert("channels").
		Columns("peer_id", "username", "title", "is_active", "added_at").
		Values(channel.PeerID, channel.Username, channel.Title, channel.IsActive, time.Now().Unix()).
		Suffix(`ON CONFLICT (peer_id) DO UPDATE SET
			username = excluded.username,
			title = excluded.title,
			is_active = excluded.is_active`).
		ToSql()
	if err != nil {
		return domain.Channel{}, fmt.Errorf("build channel upsert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Channel{}, fmt.Errorf("upsert channel %d: %w", channel.PeerID, err)
	}

	return r.getByPeerID(ctx, channel.PeerID)
}

func (r *ChannelRepo) getByPeerID(ctx context.Context, peerID int64) (domain.Channel, error) {
	row := r.store.db.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE peer_id = ?", peerID)
	channel, err := scanChannel(row)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("get channel %d: %w", peerID, err)
	}
	return channel, nil
}

// SetActive toggles a channel in or out of the ingestion set.
func (r *ChannelRepo) SetActive(ctx context.Context, channelID int64, active bool) error {
	query, args, err := r.store.builder.
		Update("channels").
		Set("is_active", active).
		Where(sq.Eq{"id": channelID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build channel update: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set channel %d active=%t: %w", channelID, active, err)
	}
	return nil
}

// ListActive returns channels participating in ingestion, oldest first.
func (r *ChannelRepo) ListActive(ctx context.Context) ([]domain.Channel, error) {
	return r.list(ctx, true)
}

// List returns every channel, oldest first.
func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	return r.list(ctx, false)
}

func (r *ChannelRepo) list(ctx context.Context, activeOnly bool) ([]domain.Channel, error) {
	builder := r.store.builder.
		Select(channelColumns).
		From("channels").
		OrderBy("id ASC")
	if activeOnly {
		builder = builder.Where(sq.Eq{"is_active": true})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build channel list: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// TouchFetched records the last successful fetch time.
func (r *ChannelRepo) TouchFetched(ctx context.Context, channelID int64, at time.Time) error {
	query, args, err := r.store.builder.
		Update("channels").
		Set("last_fetched_at", at.Unix()).
		Where(sq.Eq{"id": channelID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build channel touch: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch channel %d: %w", channelID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (domain.Channel, error) {
	var (
		channel     domain.Channel
		addedUnix   int64
		fetchedUnix sql.NullInt64
	)
	if err := row.Scan(&channel.ID, &channel.PeerID, &channel.Username, &channel.Title,
		&channel.IsActive, &addedUnix, &fetchedUnix); err != nil {
		return domain.Channel{}, err
	}
	channel.AddedAt = time.Unix(addedUnix, 0).UTC()
	if fetchedUnix.Valid {
		at := time.Unix(fetchedUnix.Int64, 0).UTC()
		channel.LastFetchedAt = &at
	}
	return channel, nil
}
