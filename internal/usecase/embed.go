package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// EmbedStats summarizes one embedding pass.
type EmbedStats struct {
	Embedded int
	Skipped  int
	Failed   int
}

// Embedder vectorizes window posts in batches. A failing batch is
// counted and skipped; the stage keeps going.
type Embedder struct {
	llm       ports.Embedder
	posts     ports.PostRepository
	summaries ports.SummaryRepository
	batchSize int
	logger    *slog.Logger
}

// NewEmbedder wires the embedding stage.
func NewEmbedder(llm ports.Embedder, posts ports.PostRepository, summaries ports.SummaryRepository, batchSize int, logger *slog.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Embedder{
		llm:       llm,
		posts:     posts,
		summaries: summaries,
		batchSize: batchSize,
		logger:    logger.With("component", "embed"),
	}
}

// Run embeds every window post still lacking a vector. Posts with no
// usable text (media-only, no summary) are skipped.
func (e *Embedder) Run(ctx context.Context, window domain.Window) (EmbedStats, error) {
	pending, err := e.posts.ListMissingEmbedding(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return EmbedStats{}, fmt.Errorf("list posts missing embedding: %w", err)
	}

	var stats EmbedStats
	type item struct {
		postID int64
		text   string
	}
	var queue []item
	for _, post := range pending {
		text, err := e.embeddingInput(ctx, post)
		if err != nil {
			return stats, err
		}
		if text == "" {
			stats.Skipped++
			continue
		}
		queue = append(queue, item{postID: post.ID, text: text})
	}

	for start := 0; start < len(queue); start += e.batchSize {
		end := min(start+e.batchSize, len(queue))
		batch := queue[start:end]

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.text
		}

		vectors, err := e.llm.Embed(ctx, texts)
		if err != nil {
			stats.Failed += len(batch)
			e.logger.Error("embed batch failed", "size", len(batch), "error", err)
			continue
		}

		for i, it := range batch {
			if err := e.posts.UpdateEmbedding(ctx, it.postID, vectors[i]); err != nil {
				stats.Failed++
				e.logger.Error("embedding update failed", "post_id", it.postID, "error", err)
				continue
			}
			stats.Embedded++
		}
	}

	remaining, err := e.posts.CountWithoutEmbedding(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return stats, fmt.Errorf("count posts without embedding: %w", err)
	}
	e.logger.Info("embed pass done", "embedded", stats.Embedded,
		"skipped", stats.Skipped, "failed", stats.Failed, "remaining", remaining)
	return stats, nil
}

// embeddingInput picks the text to vectorize: the post body, or the
// summary key point for media-only posts.
func (e *Embedder) embeddingInput(ctx context.Context, post domain.Post) (string, error) {
	if post.Text != "" {
		return post.Text, nil
	}
	summary, err := e.summaries.Get(ctx, post.ID)
	if err != nil {
		return "", fmt.Errorf("get summary for post %d: %w", post.ID, err)
	}
	if summary == nil {
		return "", nil
	}
	return summary.KeyPoint, nil
}
