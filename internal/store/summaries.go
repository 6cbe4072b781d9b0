package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// SummaryRepo persists per-post summaries.
type SummaryRepo struct {
	store *Store
}

var _ ports.SummaryRepository = (*SummaryRepo)(nil)

const summaryColumns = "post_id, key_point, why_it_matters, tags, category, importance, created_at"

// Get returns the summary for a post or nil.
func (r *SummaryRepo) Get(ctx context.Context, postID int64) (*domain.Summary, error) {
	row := r.store.db.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM post_summaries WHERE post_id = ?", postID)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary for post %d: %w", postID, err)
	}
	return &summary, nil
}

// Upsert writes the summary, replacing any previous row for the post.
func (r *SummaryRepo) Upsert(ctx context.Context, summary domain.Summary) error {
	tags := summary.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query, args, err := r.store.builder.
		Insert("post_summaries").
		Columns("post_id", "key_point", "why_it_matters", "tags", "category", "importance", "created_at").
		Values(summary.PostID, summary.KeyPoint, summary.WhyItMatters, string(tagsJSON),
			string(summary.Category), summary.Importance, time.Now().Unix()).
		Suffix(`ON CONFLICT (post_id) DO UPDATE SET
			key_point = excluded.key_point,
			why_it_matters = excluded.why_it_matters,
			tags = excluded.tags,
			category = excluded.category,
			importance = excluded.importance`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build summary upsert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert summary for post %d: %w", summary.PostID, err)
	}
	return nil
}

// FindByContentHash returns the summary of the earliest-summarized post
// sharing the content hash. The lookup is global, not window-scoped, so
// exact duplicates reuse summaries across days.
func (r *SummaryRepo) FindByContentHash(ctx context.Context, contentHash string) (*domain.Summary, error) {
	query, args, err := r.store.builder.
		Select("s.post_id", "s.key_point", "s.why_it_matters", "s.tags", "s.category",
			"s.importance", "s.created_at").
		From("post_summaries s").
		Join("posts p ON p.id = s.post_id").
		Where(sq.Eq{"p.content_hash": contentHash}).
		OrderBy("s.post_id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hash lookup: %w", err)
	}

	row := r.store.db.QueryRowContext(ctx, query, args...)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find summary by hash: %w", err)
	}
	return &summary, nil
}

func scanSummary(row rowScanner) (domain.Summary, error) {
	var (
		summary  domain.Summary
		tagsJSON string
		category string
		crUnix   int64
	)
	if err := row.Scan(&summary.PostID, &summary.KeyPoint, &summary.WhyItMatters,
		&tagsJSON, &category, &summary.Importance, &crUnix); err != nil {
		return domain.Summary{}, err
	}
	summary.Category = domain.Category(category)
	summary.CreatedAt = time.Unix(crUnix, 0).UTC()
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &summary.Tags); err != nil {
			return domain.Summary{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return summary, nil
}
