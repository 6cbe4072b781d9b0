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

// PostRepo persists raw posts and their embeddings.
type PostRepo struct {
	store *Store
}

var _ ports.PostRepository = (*PostRepo)(nil)

const postColumns = `p.id, p.channel_id, p.message_id, p.posted_at, p.edited_at, p.text,
	p.has_media, p.views, p.forwards, p.permalink, p.content_hash, p.lang, p.embedding, p.created_at`

// Upsert inserts a post or, on a (channel_id, message_id) conflict,
// refreshes its mutable fields. The embedding column is deliberately
// left untouched on update so re-ingestion never drops enrichment.
func (r *PostRepo) Upsert(ctx context.Context, post domain.Post) (domain.Post, error) {
	var editedAt any
	if post.EditedAt != nil {
		editedAt = post.EditedAt.Unix()
	}

	query, args, err := r.store.builder.
		Insert("posts").
		Columns("channel_id", "message_id", "posted_at", "edited_at", "text", "has_media",
			"views", "forwards", "permalink", "content_hash", "lang", "created_at").
		Values(post.ChannelID, post.MessageID, post.PostedAt.Unix(), editedAt, post.Text,
			post.HasMedia, post.Views, post.Forwards, post.Permalink, post.ContentHash,
			post.Lang, time.Now().Unix()).
		Suffix(`ON CONFLICT (channel_id, message_id) DO UPDATE SET
			edited_at = excluded.edited_at,
			text = excluded.text,
			has_media = excluded.has_media,
			views = excluded.views,
			forwards = excluded.forwards,
			permalink = excluded.permalink,
			content_hash = excluded.content_hash,
			lang = excluded.lang`).
		ToSql()
	if err != nil {
		return domain.Post{}, fmt.Errorf("build post upsert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Post{}, fmt.Errorf("upsert post %d/%d: %w", post.ChannelID, post.MessageID, err)
	}

	row := r.store.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts p WHERE p.channel_id = ? AND p.message_id = ?",
		post.ChannelID, post.MessageID)
	saved, err := scanPost(row)
	if err != nil {
		return domain.Post{}, fmt.Errorf("reload post %d/%d: %w", post.ChannelID, post.MessageID, err)
	}
	return saved, nil
}

// ExistingMessageIDs reports which of the candidate message ids are
// already stored for the channel.
func (r *PostRepo) ExistingMessageIDs(ctx context.Context, channelID int64, messageIDs []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(messageIDs))
	if len(messageIDs) == 0 {
		return existing, nil
	}

	query, args, err := r.store.builder.
		Select("message_id").
		From("posts").
		Where(sq.Eq{"channel_id": channelID, "message_id": messageIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing ids query: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// CountInWindow counts posts inside the half-open window.
func (r *PostRepo) CountInWindow(ctx context.Context, startAt, endAt time.Time) (int, error) {
	return r.countWindow(ctx, startAt, endAt, "")
}

// CountWithoutEmbedding counts window posts still lacking a vector.
func (r *PostRepo) CountWithoutEmbedding(ctx context.Context, startAt, endAt time.Time) (int, error) {
	return r.countWindow(ctx, startAt, endAt, "embedding IS NULL")
}

func (r *PostRepo) countWindow(ctx context.Context, startAt, endAt time.Time, extra string) (int, error) {
	builder := r.store.builder.
		Select("COUNT(id)").
		From("posts").
		Where(sq.GtOrEq{"posted_at": startAt.Unix()}).
		Where(sq.Lt{"posted_at": endAt.Unix()})
	if extra != "" {
		builder = builder.Where(extra)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// ListInWindow returns all window posts of active channels, joined with
// channel and summary, in (posted_at, id) order.
func (r *PostRepo) ListInWindow(ctx context.Context, startAt, endAt time.Time) ([]domain.EnrichedPost, error) {
	return r.listEnriched(ctx, startAt, endAt, nil, []string{"p.posted_at ASC", "p.id ASC"})
}

// ListEmbeddedByPriority returns window posts carrying an embedding in
// dedup priority order: importance desc (unsummarized last), earliest
// posted first, then id.
func (r *PostRepo) ListEmbeddedByPriority(ctx context.Context, startAt, endAt time.Time) ([]domain.EnrichedPost, error) {
	return r.listEnriched(ctx, startAt, endAt,
		sq.NotEq{"p.embedding": nil},
		[]string{"s.importance IS NULL ASC", "s.importance DESC", "p.posted_at ASC", "p.id ASC"})
}

func (r *PostRepo) listEnriched(ctx context.Context, startAt, endAt time.Time, extra sq.Sqlizer, order []string) ([]domain.EnrichedPost, error) {
	builder := r.store.builder.
		Select(postColumns,
			"c.peer_id", "c.username", "c.title", "c.is_active",
			"s.post_id", "s.key_point", "s.why_it_matters", "s.tags", "s.category", "s.importance").
		From("posts p").
		Join("channels c ON c.id = p.channel_id").
		LeftJoin("post_summaries s ON s.post_id = p.id").
		Where(sq.GtOrEq{"p.posted_at": startAt.Unix()}).
		Where(sq.Lt{"p.posted_at": endAt.Unix()}).
		Where(sq.Eq{"c.is_active": true}).
		OrderBy(order...)
	if extra != nil {
		builder = builder.Where(extra)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enriched query: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query enriched posts: %w", err)
	}
	defer rows.Close()

	var result []domain.EnrichedPost
	for rows.Next() {
		item, err := scanEnriched(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enriched post: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// ListMissingSummary returns window posts without a summary row, in
// (posted_at, id) order.
func (r *PostRepo) ListMissingSummary(ctx context.Context, startAt, endAt time.Time) ([]domain.Post, error) {
	return r.listPlain(ctx, startAt, endAt,
		"p.id NOT IN (SELECT post_id FROM post_summaries)")
}

// ListMissingEmbedding returns window posts without a vector, in
// (posted_at, id) order.
func (r *PostRepo) ListMissingEmbedding(ctx context.Context, startAt, endAt time.Time) ([]domain.Post, error) {
	return r.listPlain(ctx, startAt, endAt, "p.embedding IS NULL")
}

func (r *PostRepo) listPlain(ctx context.Context, startAt, endAt time.Time, extra string) ([]domain.Post, error) {
	query, args, err := r.store.builder.
		Select(postColumns).
		From("posts p").
		Where(sq.GtOrEq{"p.posted_at": startAt.Unix()}).
		Where(sq.Lt{"p.posted_at": endAt.Unix()}).
		Where(extra).
		OrderBy("p.posted_at ASC", "p.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post list: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// UpdateEmbedding stores a validated vector for the post.
func (r *PostRepo) UpdateEmbedding(ctx context.Context, postID int64, vector []float32) error {
	query, args, err := r.store.builder.
		Update("posts").
		Set("embedding", vectorToBlob(vector)).
		Where(sq.Eq{"id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build embedding update: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update embedding for post %d: %w", postID, err)
	}
	return nil
}

func scanPost(row rowScanner) (domain.Post, error) {
	var (
		post       domain.Post
		postedUnix int64
		editedUnix sql.NullInt64
		crUnix     int64
		blob       []byte
	)
	if err := row.Scan(&post.ID, &post.ChannelID, &post.MessageID, &postedUnix, &editedUnix,
		&post.Text, &post.HasMedia, &post.Views, &post.Forwards, &post.Permalink,
		&post.ContentHash, &post.Lang, &blob, &crUnix); err != nil {
		return domain.Post{}, err
	}
	post.PostedAt = time.Unix(postedUnix, 0).UTC()
	if editedUnix.Valid {
		at := time.Unix(editedUnix.Int64, 0).UTC()
		post.EditedAt = &at
	}
	post.Embedding = blobToVector(blob)
	post.CreatedAt = time.Unix(crUnix, 0).UTC()
	return post, nil
}

func scanEnriched(row rowScanner) (domain.EnrichedPost, error) {
	var (
		item       domain.EnrichedPost
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
	if err := row.Scan(
		&item.Post.ID, &item.Post.ChannelID, &item.Post.MessageID, &postedUnix, &editedUnix,
		&item.Post.Text, &item.Post.HasMedia, &item.Post.Views, &item.Post.Forwards,
		&item.Post.Permalink, &item.Post.ContentHash, &item.Post.Lang, &blob, &crUnix,
		&item.Channel.PeerID, &item.Channel.Username, &item.Channel.Title, &item.Channel.IsActive,
		&sumPostID, &keyPoint, &why, &tagsJSON, &category, &importance,
	); err != nil {
		return domain.EnrichedPost{}, err
	}

	item.Post.PostedAt = time.Unix(postedUnix, 0).UTC()
	if editedUnix.Valid {
		at := time.Unix(editedUnix.Int64, 0).UTC()
		item.Post.EditedAt = &at
	}
	item.Post.Embedding = blobToVector(blob)
	item.Post.CreatedAt = time.Unix(crUnix, 0).UTC()
	item.Channel.ID = item.Post.ChannelID

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
				return domain.EnrichedPost{}, fmt.Errorf("decode tags for post %d: %w", sumPostID.Int64, err)
			}
		}
		item.Summary = &summary
	}
	return item, nil
}
