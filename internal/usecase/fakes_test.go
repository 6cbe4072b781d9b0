package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSource struct {
	posts map[string][]domain.FetchedPost
	err   error
}

func (f *fakeSource) FetchWindow(ctx context.Context, channel domain.Channel, startAt, endAt time.Time) ([]domain.FetchedPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	var inWindow []domain.FetchedPost
	for _, post := range f.posts[channel.Username] {
		if !post.PostedAt.Before(startAt) && post.PostedAt.Before(endAt) {
			inWindow = append(inWindow, post)
		}
	}
	return inWindow, nil
}

type fakeSummarizer struct {
	payloads map[string]ports.SummaryPayload
	err      error
	calls    int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (ports.SummaryPayload, error) {
	f.calls++
	if f.err != nil {
		return ports.SummaryPayload{}, f.err
	}
	for needle, payload := range f.payloads {
		if needle != "" && strings.Contains(prompt, needle) {
			return payload, nil
		}
	}
	return ports.SummaryPayload{
		KeyPoint:   "generic key point",
		Category:   string(domain.CategoryOtherUseful),
		Importance: 3,
	}, nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
	batches int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out[i] = vec
			continue
		}
		vec := make([]float32, f.dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []string
	nextID   int64
	err      error
}

func (f *fakePublisher) Send(ctx context.Context, chatID int64, html string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.messages = append(f.messages, html)
	f.nextID++
	return f.nextID, nil
}

func fetchedPost(messageID int64, postedAt time.Time, text string) domain.FetchedPost {
	return domain.FetchedPost{
		MessageID:   messageID,
		PostedAt:    postedAt,
		Text:        text,
		Permalink:   fmt.Sprintf("https://t.me/chan/%d", messageID),
		ContentHash: fmt.Sprintf("hash-%s", text),
	}
}
