package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	Channels int
	Fetched  int
	New      int
	Updated  int
	Errors   int
}

// Ingester pulls window posts for every active channel and persists
// them. A failing channel is logged and skipped; it never aborts the
// stage.
type Ingester struct {
	source   ports.SourceClient
	channels ports.ChannelRepository
	posts    ports.PostRepository
	logger   *slog.Logger
}

// NewIngester wires the ingestion stage.
func NewIngester(source ports.SourceClient, channels ports.ChannelRepository, posts ports.PostRepository, logger *slog.Logger) *Ingester {
	return &Ingester{
		source:   source,
		channels: channels,
		posts:    posts,
		logger:   logger.With("component", "ingest"),
	}
}

// Run ingests all active channels for the window.
func (i *Ingester) Run(ctx context.Context, window domain.Window) (IngestStats, error) {
	channels, err := i.channels.ListActive(ctx)
	if err != nil {
		return IngestStats{}, fmt.Errorf("list active channels: %w", err)
	}

	stats := IngestStats{Channels: len(channels)}
	for _, channel := range channels {
		fetched, err := i.source.FetchWindow(ctx, channel, window.StartAt, window.EndAt)
		if err != nil {
			stats.Errors++
			i.logger.Error("fetch failed", "channel", channel.Username, "error", err)
			continue
		}
		stats.Fetched += len(fetched)

		ids := make([]int64, 0, len(fetched))
		for _, item := range fetched {
			ids = append(ids, item.MessageID)
		}
		existing, err := i.posts.ExistingMessageIDs(ctx, channel.ID, ids)
		if err != nil {
			stats.Errors++
			i.logger.Error("existing ids lookup failed", "channel", channel.Username, "error", err)
			continue
		}

		for _, item := range fetched {
			post := domain.Post{
				ChannelID:   channel.ID,
				MessageID:   item.MessageID,
				PostedAt:    item.PostedAt,
				EditedAt:    item.EditedAt,
				Text:        item.Text,
				HasMedia:    item.HasMedia,
				Views:       item.Views,
				Forwards:    item.Forwards,
				Permalink:   item.Permalink,
				ContentHash: item.ContentHash,
				Lang:        detectLang(item.Text),
			}
			if _, err := i.posts.Upsert(ctx, post); err != nil {
				stats.Errors++
				i.logger.Error("post upsert failed", "channel", channel.Username,
					"message_id", item.MessageID, "error", err)
				continue
			}
			if existing[item.MessageID] {
				stats.Updated++
			} else {
				stats.New++
			}
		}

		if err := i.channels.TouchFetched(ctx, channel.ID, time.Now().UTC()); err != nil {
			i.logger.Warn("touch fetched failed", "channel", channel.Username, "error", err)
		}
		i.logger.Info("channel ingested", "channel", channel.Username, "fetched", len(fetched))
	}

	total, err := i.posts.CountInWindow(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return stats, fmt.Errorf("count window posts: %w", err)
	}
	i.logger.Info("ingest pass done", "new", stats.New, "updated", stats.Updated,
		"errors", stats.Errors, "window_total", total)
	return stats, nil
}

// detectLang applies a cheap Cyrillic-vs-Latin heuristic.
func detectLang(text string) string {
	if text == "" {
		return ""
	}
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if cyrillic > latin {
		return "ru"
	}
	if latin > 0 {
		return "en"
	}
	return ""
}
