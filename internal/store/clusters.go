package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// ClusterRepo persists semantic dedup clusters, scoped per window.
type ClusterRepo struct {
	store *Store
}

var _ ports.ClusterRepository = (*ClusterRepo)(nil)

// ClearForWindow drops every cluster of the window. The dedup stage
// always rebuilds from scratch.
func (r *ClusterRepo) ClearForWindow(ctx context.Context, windowID int64) error {
	if _, err := r.store.db.ExecContext(ctx,
		`DELETE FROM dedup_cluster_posts WHERE cluster_id IN
			(SELECT id FROM dedup_clusters WHERE window_id = ?)`, windowID); err != nil {
		return fmt.Errorf("clear cluster members: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx,
		"DELETE FROM dedup_clusters WHERE window_id = ?", windowID); err != nil {
		return fmt.Errorf("clear clusters: %w", err)
	}
	return nil
}

// Create inserts a cluster and returns its id.
func (r *ClusterRepo) Create(ctx context.Context, windowID, representativePostID int64, label string) (int64, error) {
	query, args, err := r.store.builder.
		Insert("dedup_clusters").
		Columns("window_id", "representative_post_id", "label", "created_at").
		Values(windowID, representativePostID, label, time.Now().Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cluster insert: %w", err)
	}

	result, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert cluster: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cluster id: %w", err)
	}
	return id, nil
}

// AddMembers attaches posts with their similarity scores.
func (r *ClusterRepo) AddMembers(ctx context.Context, members []domain.ClusterMember) error {
	if len(members) == 0 {
		return nil
	}

	builder := r.store.builder.
		Insert("dedup_cluster_posts").
		Columns("cluster_id", "post_id", "similarity")
	for _, m := range members {
		builder = builder.Values(m.ClusterID, m.PostID, m.Similarity)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build member insert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert cluster members: %w", err)
	}
	return nil
}

// ListForWindow returns every membership of the window joined with the
// member post, channel and summary, grouped by cluster id.
func (r *ClusterRepo) ListForWindow(ctx context.Context, windowID int64) ([]domain.ClusterRow, error) {
	query, args, err := r.store.builder.
		Select("dc.id", "dc.representative_post_id", "dcp.similarity",
			postColumns,
			"c.peer_id", "c.username", "c.title", "c.is_active",
			"s.post_id", "s.key_point", "s.why_it_matters", "s.tags", "s.category", "s.importance").
		From("dedup_clusters dc").
		Join("dedup_cluster_posts dcp ON dcp.cluster_id = dc.id").
		Join("posts p ON p.id = dcp.post_id").
		Join("channels c ON c.id = p.channel_id").
		LeftJoin("post_summaries s ON s.post_id = p.id").
		Where(sq.Eq{"dc.window_id": windowID, "c.is_active": true}).
		OrderBy("dc.id ASC", "p.posted_at ASC", "p.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cluster list: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var result []domain.ClusterRow
	for rows.Next() {
		row, err := scanClusterRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanClusterRow(rows *sql.Rows) (domain.ClusterRow, error) {
	var (
		out        domain.ClusterRow
		postedUnix int64
		editedUnix sql.NullInt64
		crUnix     int64
		blob       []byte

		sumPostID  sql.NullInt64
		keyPoint   sql.NullString
		why        sql.NullString
		tagsJSON   sql.NullString
		category   sql.NullString
		importance sql.NullInt64
	)
	if err := rows.Scan(
		&out.ClusterID, &out.RepresentativePostID, &out.Similarity,
		&out.Post.Post.ID, &out.Post.Post.ChannelID, &out.Post.Post.MessageID, &postedUnix, &editedUnix,
		&out.Post.Post.Text, &out.Post.Post.HasMedia, &out.Post.Post.Views, &out.Post.Post.Forwards,
		&out.Post.Post.Permalink, &out.Post.Post.ContentHash, &out.Post.Post.Lang, &blob, &crUnix,
		&out.Post.Channel.PeerID, &out.Post.Channel.Username, &out.Post.Channel.Title, &out.Post.Channel.IsActive,
		&sumPostID, &keyPoint, &why, &tagsJSON, &category, &importance,
	); err != nil {
		return domain.ClusterRow{}, err
	}

	out.Post.Post.PostedAt = time.Unix(postedUnix, 0).UTC()
	if editedUnix.Valid {
		at := time.Unix(editedUnix.Int64, 0).UTC()
		out.Post.Post.EditedAt = &at
	}
	out.Post.Post.Embedding = blobToVector(blob)
	out.Post.Post.CreatedAt = time.Unix(crUnix, 0).UTC()
	out.Post.Channel.ID = out.Post.Post.ChannelID

	if sumPostID.Valid {
		summary := domain.Summary{
			PostID:       sumPostID.Int64,
			KeyPoint:     keyPoint.String,
			WhyItMatters: why.String,
			Category:     domain.Category(category.String),
			Importance:   int(importance.Int64),
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &summary.Tags); err != nil {
				return domain.ClusterRow{}, fmt.Errorf("decode tags: %w", err)
			}
		}
		out.Post.Summary = &summary
	}
	return out, nil
}
