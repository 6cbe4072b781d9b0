package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aidigest/internal/domain"
)

const messageTemplate = `
<div class="tgme_widget_message" data-post="%s/%d">
  <div class="tgme_widget_message_text">%s</div>
  %s
  <span class="tgme_widget_message_views">%s</span>
  <a class="tgme_widget_message_date"><time datetime="%s"></time></a>
</div>`

func previewMessage(username string, id int64, text, media, views string, at time.Time) string {
	return fmt.Sprintf(messageTemplate, username, id, text, media, views, at.Format(time.RFC3339))
}

func testChannel() domain.Channel {
	return domain.Channel{ID: 1, PeerID: 100, Username: "ai_news", Title: "AI News", IsActive: true}
}

func TestFetchWindowParsesAndFilters(t *testing.T) {
	start := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	page := "<html><body>" +
		// Older than the window: stops pagination, never returned.
		previewMessage("ai_news", 100, "stale post", "", "10", start.Add(-time.Hour)) +
		previewMessage("ai_news", 101, "first post", "", "1.2K", start.Add(2*time.Hour)) +
		previewMessage("ai_news", 102, "",
			`<div class="tgme_widget_message_photo"></div>`, "3M", start.Add(3*time.Hour)) +
		// Past the window end: ignored.
		previewMessage("ai_news", 103, "tomorrow post", "", "5", end.Add(time.Hour)) +
		"</body></html>"

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	scraper := unthrottled(NewPreviewScraper(server.URL, server.Client(), discardLogger()))
	posts, err := scraper.FetchWindow(context.Background(), testChannel(), start, end)
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}

	if requests != 1 {
		t.Fatalf("expected a single page fetch, got %d", requests)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts in window, got %d", len(posts))
	}

	first := posts[0]
	if first.MessageID != 101 {
		t.Errorf("message id = %d, want 101", first.MessageID)
	}
	if first.Text != "first post" {
		t.Errorf("text = %q", first.Text)
	}
	if first.Views != 1200 {
		t.Errorf("views = %d, want 1200", first.Views)
	}
	if first.Permalink != "https://t.me/ai_news/101" {
		t.Errorf("permalink = %q", first.Permalink)
	}
	if first.ContentHash == "" {
		t.Error("content hash must not be empty")
	}

	second := posts[1]
	if !second.HasMedia {
		t.Error("media post must set HasMedia")
	}
	if second.Views != 3_000_000 {
		t.Errorf("views = %d, want 3000000", second.Views)
	}
	if second.ContentHash == first.ContentHash {
		t.Error("media-only post must not collide with a text post")
	}
}

func TestFetchWindowPaginatesUntilWindowStart(t *testing.T) {
	start := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	pageNew := "<html><body>" +
		previewMessage("ai_news", 201, "late post", "", "1", start.Add(20*time.Hour)) +
		"</body></html>"
	pageOld := "<html><body>" +
		previewMessage("ai_news", 150, "stale", "", "1", start.Add(-time.Hour)) +
		previewMessage("ai_news", 151, "early post", "", "1", start.Add(time.Hour)) +
		"</body></html>"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("before") == "" {
			fmt.Fprint(w, pageNew)
			return
		}
		if r.URL.Query().Get("before") != "201" {
			t.Errorf("unexpected before=%s", r.URL.Query().Get("before"))
		}
		fmt.Fprint(w, pageOld)
	}))
	defer server.Close()

	scraper := unthrottled(NewPreviewScraper(server.URL, server.Client(), discardLogger()))
	posts, err := scraper.FetchWindow(context.Background(), testChannel(), start, end)
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].MessageID != 201 || posts[1].MessageID != 151 {
		t.Errorf("unexpected message ids: %d, %d", posts[0].MessageID, posts[1].MessageID)
	}
}

func TestFetchWindowRetriesRateLimit(t *testing.T) {
	start := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	page := "<html><body>" +
		previewMessage("ai_news", 100, "stale", "", "1", start.Add(-time.Hour)) +
		previewMessage("ai_news", 101, "post", "", "1", start.Add(time.Hour)) +
		"</body></html>"

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	scraper := unthrottled(NewPreviewScraper(server.URL, server.Client(), discardLogger()))
	var slept []time.Duration
	scraper.policy.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	posts, err := scraper.FetchWindow(context.Background(), testChannel(), start, end)
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
	if len(slept) != 1 || slept[0] < time.Second {
		t.Errorf("expected one sleep honoring the Retry-After hint, got %v", slept)
	}
}

func TestParseViews(t *testing.T) {
	cases := map[string]int64{
		"":      0,
		"893":   893,
		"1.2K":  1200,
		"3M":    3_000_000,
		" 45 ":  45,
		"weird": 0,
	}
	for raw, want := range cases {
		if got := parseViews(raw); got != want {
			t.Errorf("parseViews(%q) = %d, want %d", raw, got, want)
		}
	}
}
