package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aidigest/internal/config"
	"aidigest/internal/ports"
	"aidigest/internal/retry"
)

// Client talks to an OpenAI-compatible API for chat completions and
// embeddings.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

var _ ports.Summarizer = (*Client)(nil)

// NewClient builds a client from the LLM configuration section.
func NewClient(cfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		httpClient: httpClient,
		policy:     retry.DefaultPolicy(),
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize asks the chat model for a structured post summary.
func (c *Client) Summarize(ctx context.Context, prompt string) (ports.SummaryPayload, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return ports.SummaryPayload{}, fmt.Errorf("encode chat request: %w", err)
	}

	var payload ports.SummaryPayload
	err = c.policy.Do(ctx, func() error {
		raw, err := c.post(ctx, "/chat/completions", body)
		if err != nil {
			return err
		}

		var decoded chatResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return &retry.MalformedError{Err: fmt.Errorf("decode chat response: %w", err)}
		}
		if len(decoded.Choices) == 0 {
			return &retry.MalformedError{Err: fmt.Errorf("chat response has no choices")}
		}

		parsed, err := parseSummaryJSON(decoded.Choices[0].Message.Content)
		if err != nil {
			return &retry.MalformedError{Err: err}
		}
		payload = parsed
		return nil
	})
	return payload, err
}

// parseSummaryJSON extracts the summary object from model output,
// tolerating ```json fences and leading prose.
func parseSummaryJSON(content string) (ports.SummaryPayload, error) {
	text := strings.TrimSpace(content)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ports.SummaryPayload{}, fmt.Errorf("model output contains no JSON object")
	}

	var payload ports.SummaryPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		// Importance occasionally arrives as a quoted number.
		var loose struct {
			KeyPoint     string   `json:"key_point"`
			WhyItMatters string   `json:"why_it_matters"`
			Tags         []string `json:"tags"`
			Category     string   `json:"category"`
			Importance   string   `json:"importance"`
		}
		if err2 := json.Unmarshal([]byte(text[start:end+1]), &loose); err2 != nil {
			return ports.SummaryPayload{}, fmt.Errorf("parse summary JSON: %w", err)
		}
		importance, _ := strconv.Atoi(strings.TrimSpace(loose.Importance))
		payload = ports.SummaryPayload{
			KeyPoint:     loose.KeyPoint,
			WhyItMatters: loose.WhyItMatters,
			Tags:         loose.Tags,
			Category:     loose.Category,
			Importance:   importance,
		}
	}
	return payload, nil
}

// post performs one API call and classifies the failure for the retry
// policy.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retry.TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &retry.TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retry.RateLimitError{RetryAfter: headerRetryAfter(resp)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &retry.TransientError{Err: fmt.Errorf("llm api returned %s", resp.Status)}
	default:
		return nil, fmt.Errorf("llm api returned %s: %s", resp.Status, truncate(string(raw), 200))
	}
}

func headerRetryAfter(resp *http.Response) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Second
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
