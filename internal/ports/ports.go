package ports

import (
	"context"
	"time"

	"aidigest/internal/domain"
)

// SourceClient pulls channel posts that fall inside a window.
type SourceClient interface {
	FetchWindow(ctx context.Context, channel domain.Channel, startAt, endAt time.Time) ([]domain.FetchedPost, error)
}

// SummaryPayload is the structured answer of the summarization service
// before normalization.
type SummaryPayload struct {
	KeyPoint     string   `json:"key_point"`
	WhyItMatters string   `json:"why_it_matters"`
	Tags         []string `json:"tags"`
	Category     string   `json:"category"`
	Importance   int      `json:"importance"`
}

// Summarizer produces a structured summary for one post prompt.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (SummaryPayload, error)
}

// Embedder returns one fixed-dimension vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Publisher delivers one rendered digest message and returns its
// message id.
type Publisher interface {
	Send(ctx context.Context, chatID int64, html string) (int64, error)
}

// WindowRepository persists daily windows and their status.
type WindowRepository interface {
	GetOrCreate(ctx context.Context, startAt, endAt time.Time) (domain.Window, error)
	SetStatus(ctx context.Context, windowID int64, status domain.WindowStatus) error
	GetByRange(ctx context.Context, startAt, endAt time.Time) (*domain.Window, error)
}

// ChannelRepository manages tracked source channels.
type ChannelRepository interface {
	Upsert(ctx context.Context, channel domain.Channel) (domain.Channel, error)
	SetActive(ctx context.Context, channelID int64, active bool) error
	ListActive(ctx context.Context) ([]domain.Channel, error)
	List(ctx context.Context) ([]domain.Channel, error)
	TouchFetched(ctx context.Context, channelID int64, at time.Time) error
}

// PostRepository persists raw posts and their embeddings.
type PostRepository interface {
	Upsert(ctx context.Context, post domain.Post) (domain.Post, error)
	ExistingMessageIDs(ctx context.Context, channelID int64, messageIDs []int64) (map[int64]bool, error)
	CountInWindow(ctx context.Context, startAt, endAt time.Time) (int, error)
	ListInWindow(ctx context.Context, startAt, endAt time.Time) ([]domain.EnrichedPost, error)
	ListMissingSummary(ctx context.Context, startAt, endAt time.Time) ([]domain.Post, error)
	ListMissingEmbedding(ctx context.Context, startAt, endAt time.Time) ([]domain.Post, error)
	UpdateEmbedding(ctx context.Context, postID int64, vector []float32) error
	CountWithoutEmbedding(ctx context.Context, startAt, endAt time.Time) (int, error)
	ListEmbeddedByPriority(ctx context.Context, startAt, endAt time.Time) ([]domain.EnrichedPost, error)
}

// SummaryRepository persists post summaries keyed by post id.
type SummaryRepository interface {
	Get(ctx context.Context, postID int64) (*domain.Summary, error)
	Upsert(ctx context.Context, summary domain.Summary) error
	// FindByContentHash resolves the earliest summary of any post
	// sharing the hash, across all windows.
	FindByContentHash(ctx context.Context, contentHash string) (*domain.Summary, error)
}

// ClusterRepository persists semantic dedup clusters per window.
type ClusterRepository interface {
	ClearForWindow(ctx context.Context, windowID int64) error
	Create(ctx context.Context, windowID, representativePostID int64, label string) (int64, error)
	AddMembers(ctx context.Context, members []domain.ClusterMember) error
	ListForWindow(ctx context.Context, windowID int64) ([]domain.ClusterRow, error)
}

// DigestRepository persists the published digest per window.
type DigestRepository interface {
	GetByWindow(ctx context.Context, windowID int64) (*domain.Digest, error)
	Upsert(ctx context.Context, digest domain.Digest) (domain.Digest, error)
}
