package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// ErrRunInProgress is returned when a pipeline run is already active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// ErrAlreadyPublished is returned when the window's digest was already
// delivered and force is off.
var ErrAlreadyPublished = errors.New("digest already published for window")

// PipelineStats aggregates per-stage counters of one run.
type PipelineStats struct {
	RunID     string
	WindowID  int64
	Ingest    IngestStats
	Summarize SummarizeStats
	Embed     EmbedStats
	Dedup     DedupStats
	Published int
	Skipped   bool
	Duration  time.Duration
}

// Pipeline sequences the daily stages against one window and owns every
// window status transition. A CAS guard keeps runs single-flight within
// the process; across processes the published_at marker makes a rerun a
// no-op.
type Pipeline struct {
	ingester  *Ingester
	summarize *Summarizer
	embedder  *Embedder
	deduper   *Deduper
	builder   *DigestBuilder
	publisher ports.Publisher

	windows ports.WindowRepository
	digests ports.DigestRepository

	digestChannelID int64
	running         atomic.Bool
	logger          *slog.Logger
}

// NewPipeline wires the orchestrator.
func NewPipeline(ingester *Ingester, summarizer *Summarizer, embedder *Embedder,
	deduper *Deduper, builder *DigestBuilder, publisher ports.Publisher,
	windows ports.WindowRepository, digests ports.DigestRepository,
	digestChannelID int64, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		ingester:        ingester,
		summarize:       summarizer,
		embedder:        embedder,
		deduper:         deduper,
		builder:         builder,
		publisher:       publisher,
		windows:         windows,
		digests:         digests,
		digestChannelID: digestChannelID,
		logger:          logger.With("component", "pipeline"),
	}
}

// Run executes the full pipeline for the window. With force off, a
// window whose digest already carries published_at is skipped before
// any stage runs.
func (p *Pipeline) Run(ctx context.Context, startAt, endAt time.Time, force bool) (stats PipelineStats, err error) {
	if !p.running.CompareAndSwap(false, true) {
		return PipelineStats{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	started := time.Now()
	defer func() { stats.Duration = time.Since(started) }()

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	stats.RunID = runID

	window, err := p.windows.GetOrCreate(ctx, startAt, endAt)
	if err != nil {
		return stats, fmt.Errorf("get or create window: %w", err)
	}
	stats.WindowID = window.ID
	logger.Info("run started", "window_id", window.ID,
		"start_at", startAt, "end_at", endAt, "force", force)

	if !force {
		published, err := p.isPublished(ctx, window.ID)
		if err != nil {
			return stats, err
		}
		if published {
			stats.Skipped = true
			if err := p.markStatus(ctx, window.ID, domain.WindowPublished); err != nil {
				return stats, err
			}
			logger.Info("window already published, skipping")
			return stats, nil
		}
	}

	if err := p.runStages(ctx, window, force, &stats); err != nil {
		if statusErr := p.windows.SetStatus(ctx, window.ID, domain.WindowFailed); statusErr != nil {
			logger.Error("cannot mark window failed", "error", statusErr)
		}
		return stats, err
	}

	logger.Info("run finished", "published_messages", stats.Published,
		"duration", time.Since(started))
	return stats, nil
}

func (p *Pipeline) runStages(ctx context.Context, window domain.Window, force bool, stats *PipelineStats) error {
	var err error

	if stats.Ingest, err = p.Ingest(ctx, window); err != nil {
		return fmt.Errorf("ingest stage: %w", err)
	}
	if stats.Summarize, err = p.Summarize(ctx, window); err != nil {
		return fmt.Errorf("summarize stage: %w", err)
	}
	if stats.Embed, err = p.Embed(ctx, window); err != nil {
		return fmt.Errorf("embed stage: %w", err)
	}
	if stats.Dedup, err = p.Dedup(ctx, window); err != nil {
		return fmt.Errorf("dedup stage: %w", err)
	}
	if stats.Published, err = p.Publish(ctx, window, force); err != nil {
		return fmt.Errorf("publish stage: %w", err)
	}
	return nil
}

func (p *Pipeline) markStatus(ctx context.Context, windowID int64, status domain.WindowStatus) error {
	if err := p.windows.SetStatus(ctx, windowID, status); err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	return nil
}

// Publish builds, renders and sends the window digest, records it with
// a published_at marker and advances the window status. It returns the
// number of messages sent.
func (p *Pipeline) Publish(ctx context.Context, window domain.Window, force bool) (int, error) {
	if !force {
		published, err := p.isPublished(ctx, window.ID)
		if err != nil {
			return 0, err
		}
		if published {
			return 0, ErrAlreadyPublished
		}
	}

	data, err := p.builder.Build(ctx, window)
	if err != nil {
		return 0, err
	}

	content := RenderDigest(data)
	messages := SplitMessage(content, MaxMessageLength)

	messageIDs := make([]int64, 0, len(messages))
	for _, message := range messages {
		id, err := p.publisher.Send(ctx, p.digestChannelID, message)
		if err != nil {
			return len(messageIDs), fmt.Errorf("send digest message: %w", err)
		}
		messageIDs = append(messageIDs, id)
	}

	now := time.Now().UTC()
	if _, err := p.digests.Upsert(ctx, domain.Digest{
		WindowID:    window.ID,
		ChannelID:   p.digestChannelID,
		MessageIDs:  messageIDs,
		Content:     content,
		Stats:       data.Stats,
		PublishedAt: &now,
	}); err != nil {
		return len(messageIDs), fmt.Errorf("record digest: %w", err)
	}
	return len(messageIDs), p.markStatus(ctx, window.ID, domain.WindowPublished)
}

func (p *Pipeline) isPublished(ctx context.Context, windowID int64) (bool, error) {
	digest, err := p.digests.GetByWindow(ctx, windowID)
	if err != nil {
		return false, fmt.Errorf("get digest: %w", err)
	}
	return digest != nil && digest.PublishedAt != nil, nil
}

// StageWindow resolves the window for standalone stage commands,
// creating it if needed.
func (p *Pipeline) StageWindow(ctx context.Context, startAt, endAt time.Time) (domain.Window, error) {
	return p.windows.GetOrCreate(ctx, startAt, endAt)
}

// Ingest runs the ingestion stage and advances the window status, so a
// standalone stage command leaves the same trail as a full run.
func (p *Pipeline) Ingest(ctx context.Context, window domain.Window) (IngestStats, error) {
	stats, err := p.ingester.Run(ctx, window)
	if err != nil {
		return stats, err
	}
	return stats, p.markStatus(ctx, window.ID, domain.WindowIngested)
}

// Summarize runs the summarization stage and advances the window status.
func (p *Pipeline) Summarize(ctx context.Context, window domain.Window) (SummarizeStats, error) {
	stats, err := p.summarize.Run(ctx, window)
	if err != nil {
		return stats, err
	}
	return stats, p.markStatus(ctx, window.ID, domain.WindowSummarized)
}

// Embed runs the embedding stage and advances the window status.
func (p *Pipeline) Embed(ctx context.Context, window domain.Window) (EmbedStats, error) {
	stats, err := p.embedder.Run(ctx, window)
	if err != nil {
		return stats, err
	}
	return stats, p.markStatus(ctx, window.ID, domain.WindowEmbedded)
}

// Dedup runs the clustering stage and advances the window status.
func (p *Pipeline) Dedup(ctx context.Context, window domain.Window) (DedupStats, error) {
	stats, err := p.deduper.Run(ctx, window)
	if err != nil {
		return stats, err
	}
	return stats, p.markStatus(ctx, window.ID, domain.WindowDeduped)
}
