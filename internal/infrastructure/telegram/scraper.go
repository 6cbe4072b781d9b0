package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"aidigest/internal/domain"
	"aidigest/internal/normalize"
	"aidigest/internal/ports"
	"aidigest/internal/retry"
)

// PreviewScraper reads public channel posts from the t.me/s web preview
// pages. It walks pages backwards (?before=<id>) until it crosses the
// window start.
type PreviewScraper struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *slog.Logger
}

var _ ports.SourceClient = (*PreviewScraper)(nil)

// NewPreviewScraper wires an HTTP client; baseURL defaults to the
// public preview host.
func NewPreviewScraper(baseURL string, client *http.Client, logger *slog.Logger) *PreviewScraper {
	if baseURL == "" {
		baseURL = "https://t.me/s"
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PreviewScraper{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Every(700*time.Millisecond), 1),
		policy:  retry.DefaultPolicy(),
		logger:  logger,
	}
}

// FetchWindow returns channel posts with posted_at inside [startAt, endAt).
func (s *PreviewScraper) FetchWindow(ctx context.Context, channel domain.Channel, startAt, endAt time.Time) ([]domain.FetchedPost, error) {
	if channel.Username == "" {
		return nil, fmt.Errorf("channel %d has no username for preview scraping", channel.ID)
	}

	var (
		collected []domain.FetchedPost
		before    int64
		seen      = map[int64]struct{}{}
	)

	for {
		pageURL := fmt.Sprintf("%s/%s", s.baseURL, channel.Username)
		if before > 0 {
			pageURL = fmt.Sprintf("%s?before=%d", pageURL, before)
		}

		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", channel.Username, err)
		}

		posts, oldestID, crossedStart := s.extractPosts(doc, channel.Username, startAt, endAt)
		for _, post := range posts {
			if _, ok := seen[post.MessageID]; ok {
				continue
			}
			seen[post.MessageID] = struct{}{}
			collected = append(collected, post)
		}

		if crossedStart || oldestID == 0 || (before > 0 && oldestID >= before) {
			break
		}
		before = oldestID
	}

	return collected, nil
}

func (s *PreviewScraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var doc *goquery.Document
	err := s.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "aidigest/1.0")

		resp, err := s.client.Do(req)
		if err != nil {
			return &retry.TransientError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &retry.RateLimitError{RetryAfter: retryAfter(resp)}
		case resp.StatusCode >= http.StatusInternalServerError:
			return &retry.TransientError{Err: fmt.Errorf("preview returned %s", resp.Status)}
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("preview returned %s", resp.Status)
		}

		parsed, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return &retry.MalformedError{Err: err}
		}
		doc = parsed
		return nil
	})
	return doc, err
}

// extractPosts walks the message blocks of one preview page. It reports
// the smallest message id seen (for pagination) and whether any post
// predates the window start.
func (s *PreviewScraper) extractPosts(doc *goquery.Document, username string, startAt, endAt time.Time) ([]domain.FetchedPost, int64, bool) {
	var (
		posts        []domain.FetchedPost
		oldestID     int64
		crossedStart bool
	)

	doc.Find(".tgme_widget_message").Each(func(i int, msg *goquery.Selection) {
		dataPost, ok := msg.Attr("data-post")
		if !ok {
			return
		}
		messageID := parseMessageID(dataPost)
		if messageID == 0 {
			return
		}
		if oldestID == 0 || messageID < oldestID {
			oldestID = messageID
		}

		datetime, ok := msg.Find(".tgme_widget_message_date time").First().Attr("datetime")
		if !ok {
			return
		}
		postedAt, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return
		}
		postedAt = postedAt.UTC()

		if postedAt.Before(startAt) {
			crossedStart = true
			return
		}
		if !postedAt.Before(endAt) {
			return
		}

		text := normalize.Text(msg.Find(".tgme_widget_message_text").First().Text())
		hasMedia := msg.Find(".tgme_widget_message_photo, .tgme_widget_message_video, .tgme_widget_message_document").Length() > 0
		permalink := fmt.Sprintf("https://t.me/%s/%d", username, messageID)

		posts = append(posts, domain.FetchedPost{
			MessageID:   messageID,
			PostedAt:    postedAt,
			Text:        text,
			HasMedia:    hasMedia,
			Views:       parseViews(msg.Find(".tgme_widget_message_views").First().Text()),
			Permalink:   permalink,
			ContentHash: normalize.ContentHash(text, hasMedia, permalink, postedAt),
		})
	})

	return posts, oldestID, crossedStart
}

// parseMessageID extracts the numeric id from a "channel/123" data-post
// attribute.
func parseMessageID(dataPost string) int64 {
	idx := strings.LastIndex(dataPost, "/")
	if idx < 0 || idx == len(dataPost)-1 {
		return 0
	}
	id, err := strconv.ParseInt(dataPost[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// parseViews decodes compact counters like "893", "1.2K" or "3M".
func parseViews(raw string) int64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(value, "K"):
		multiplier = 1_000
		value = strings.TrimSuffix(value, "K")
	case strings.HasSuffix(value, "M"):
		multiplier = 1_000_000
		value = strings.TrimSuffix(value, "M")
	}

	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int64(number * float64(multiplier))
}

func retryAfter(resp *http.Response) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Second
}
