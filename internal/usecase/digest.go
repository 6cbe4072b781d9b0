package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// ChannelSection is the per-channel block of a digest: up to K of the
// channel's own signal posts plus the count of window posts that were
// filtered out or did not fit.
type ChannelSection struct {
	Channel domain.Channel
	Posts   []domain.EnrichedPost
	Hidden  int
}

// DigestData is the selected content of one digest before rendering.
type DigestData struct {
	Window    domain.Window
	TopGlobal []domain.EnrichedPost
	Channels  []ChannelSection
	Stats     map[string]int
}

// DigestBuilder ranks cluster representatives and selects the global
// top list and per-channel sections.
type DigestBuilder struct {
	posts    ports.PostRepository
	clusters ports.ClusterRepository

	topNGlobal           int
	topKPerChannel       int
	minImportanceGlobal  int
	minImportanceChannel int

	logger *slog.Logger
}

// NewDigestBuilder wires the selection stage.
func NewDigestBuilder(posts ports.PostRepository, clusters ports.ClusterRepository,
	topNGlobal, topKPerChannel, minImportanceGlobal, minImportanceChannel int, logger *slog.Logger) *DigestBuilder {
	return &DigestBuilder{
		posts:                posts,
		clusters:             clusters,
		topNGlobal:           topNGlobal,
		topKPerChannel:       topKPerChannel,
		minImportanceGlobal:  minImportanceGlobal,
		minImportanceChannel: minImportanceChannel,
		logger:               logger.With("component", "digest"),
	}
}

// Build selects digest content for the window. When no clusters exist
// (embedding outage), it falls back to exact-hash grouping over the raw
// window posts so the digest still goes out.
func (b *DigestBuilder) Build(ctx context.Context, window domain.Window) (DigestData, error) {
	windowPosts, err := b.posts.ListInWindow(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return DigestData{}, fmt.Errorf("list window posts: %w", err)
	}

	representatives, clusterCount, err := b.representatives(ctx, window, windowPosts)
	if err != nil {
		return DigestData{}, err
	}

	data := DigestData{
		Window:    window,
		TopGlobal: b.selectGlobal(representatives),
		Channels:  b.selectPerChannel(windowPosts),
		Stats: map[string]int{
			"posts_in_window": len(windowPosts),
			"representatives": len(representatives),
			"clusters":        clusterCount,
		},
	}
	data.Stats["top_global"] = len(data.TopGlobal)
	b.logger.Info("digest built", "representatives", len(representatives),
		"top_global", len(data.TopGlobal), "channels", len(data.Channels))
	return data, nil
}

// representatives returns one post per cluster; without clusters it
// groups raw posts by content hash and keeps the best of each group.
func (b *DigestBuilder) representatives(ctx context.Context, window domain.Window, windowPosts []domain.EnrichedPost) ([]domain.EnrichedPost, int, error) {
	rows, err := b.clusters.ListForWindow(ctx, window.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("list clusters: %w", err)
	}

	if len(rows) > 0 {
		byCluster := map[int64]domain.EnrichedPost{}
		designated := map[int64]bool{}
		var order []int64
		for _, row := range rows {
			current, ok := byCluster[row.ClusterID]
			if !ok {
				order = append(order, row.ClusterID)
				byCluster[row.ClusterID] = row.Post
			}
			if row.Post.Post.ID == row.RepresentativePostID {
				byCluster[row.ClusterID] = row.Post
				designated[row.ClusterID] = true
				continue
			}
			// Without the designated representative (inactive channel,
			// deleted post) the strongest member stands in.
			if ok && !designated[row.ClusterID] && preferAsRepresentative(row.Post, current) {
				byCluster[row.ClusterID] = row.Post
			}
		}
		result := make([]domain.EnrichedPost, 0, len(order))
		for _, id := range order {
			result = append(result, byCluster[id])
		}
		return result, len(order), nil
	}

	// Exact-hash fallback.
	byHash := map[string]domain.EnrichedPost{}
	var order []string
	for _, post := range windowPosts {
		current, ok := byHash[post.Post.ContentHash]
		if !ok {
			order = append(order, post.Post.ContentHash)
			byHash[post.Post.ContentHash] = post
			continue
		}
		if preferAsRepresentative(post, current) {
			byHash[post.Post.ContentHash] = post
		}
	}
	result := make([]domain.EnrichedPost, 0, len(order))
	for _, hash := range order {
		result = append(result, byHash[hash])
	}
	return result, 0, nil
}

// preferAsRepresentative orders by importance desc, then earliest
// posted, then smallest id.
func preferAsRepresentative(a, b domain.EnrichedPost) bool {
	if a.Importance() != b.Importance() {
		return a.Importance() > b.Importance()
	}
	if !a.Post.PostedAt.Equal(b.Post.PostedAt) {
		return a.Post.PostedAt.Before(b.Post.PostedAt)
	}
	return a.Post.ID < b.Post.ID
}

// isSignal filters out noise and low-importance posts.
func isSignal(post domain.EnrichedPost, minImportance int) bool {
	return post.Category() != domain.CategoryNoise && post.Importance() >= minImportance
}

// rankForOutput orders by importance desc, then latest posted, then
// smallest id. Output ranking prefers fresh posts, unlike cluster
// seeding which prefers early ones.
func rankForOutput(items []domain.EnrichedPost) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Importance() != items[j].Importance() {
			return items[i].Importance() > items[j].Importance()
		}
		if !items[i].Post.PostedAt.Equal(items[j].Post.PostedAt) {
			return items[i].Post.PostedAt.After(items[j].Post.PostedAt)
		}
		return items[i].Post.ID < items[j].Post.ID
	})
}

func (b *DigestBuilder) selectGlobal(representatives []domain.EnrichedPost) []domain.EnrichedPost {
	var signal []domain.EnrichedPost
	for _, post := range representatives {
		if isSignal(post, b.minImportanceGlobal) {
			signal = append(signal, post)
		}
	}
	rankForOutput(signal)
	if len(signal) > b.topNGlobal {
		signal = signal[:b.topNGlobal]
	}
	return signal
}

// selectPerChannel builds one section per channel with window posts,
// independent of clusters: each channel shows its own signal posts and
// everything else (noise, low importance, beyond top-K) counts as
// hidden.
func (b *DigestBuilder) selectPerChannel(windowPosts []domain.EnrichedPost) []ChannelSection {
	byChannel := map[int64][]domain.EnrichedPost{}
	totals := map[int64]int{}
	channels := map[int64]domain.Channel{}
	var order []int64
	for _, post := range windowPosts {
		id := post.Channel.ID
		if _, ok := channels[id]; !ok {
			order = append(order, id)
			channels[id] = post.Channel
		}
		totals[id]++
		if isSignal(post, b.minImportanceChannel) {
			byChannel[id] = append(byChannel[id], post)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		return channels[order[i]].Username < channels[order[j]].Username
	})

	sections := make([]ChannelSection, 0, len(order))
	for _, id := range order {
		posts := byChannel[id]
		rankForOutput(posts)
		if len(posts) > b.topKPerChannel {
			posts = posts[:b.topKPerChannel]
		}
		sections = append(sections, ChannelSection{
			Channel: channels[id],
			Posts:   posts,
			Hidden:  totals[id] - len(posts),
		})
	}
	return sections
}
