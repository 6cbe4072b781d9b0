package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// DedupStats summarizes one clustering pass.
type DedupStats struct {
	Posts      int
	Clusters   int
	Duplicates int
}

// Deduper rebuilds the window's semantic clusters from scratch on each
// run: a greedy single pass in (importance desc, posted_at asc, id asc)
// priority order, attaching each seed's nearest unassigned neighbors
// above the cosine threshold.
type Deduper struct {
	posts     ports.PostRepository
	clusters  ports.ClusterRepository
	threshold float64
	topK      int
	logger    *slog.Logger
}

// NewDeduper wires the dedup stage.
func NewDeduper(posts ports.PostRepository, clusters ports.ClusterRepository, threshold float64, topK int, logger *slog.Logger) *Deduper {
	if topK <= 0 {
		topK = 80
	}
	return &Deduper{
		posts:     posts,
		clusters:  clusters,
		threshold: threshold,
		topK:      topK,
		logger:    logger.With("component", "dedup"),
	}
}

// Run clusters all embedded window posts.
func (d *Deduper) Run(ctx context.Context, window domain.Window) (DedupStats, error) {
	candidates, err := d.posts.ListEmbeddedByPriority(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return DedupStats{}, fmt.Errorf("list embedded posts: %w", err)
	}

	if err := d.clusters.ClearForWindow(ctx, window.ID); err != nil {
		return DedupStats{}, fmt.Errorf("clear clusters: %w", err)
	}

	stats := DedupStats{Posts: len(candidates)}
	assigned := make(map[int64]bool, len(candidates))

	for _, seed := range candidates {
		if assigned[seed.Post.ID] {
			continue
		}
		assigned[seed.Post.ID] = true

		label := ""
		if seed.Summary != nil {
			label = seed.Summary.KeyPoint
		}
		clusterID, err := d.clusters.Create(ctx, window.ID, seed.Post.ID, label)
		if err != nil {
			return stats, fmt.Errorf("create cluster: %w", err)
		}
		members := []domain.ClusterMember{
			{ClusterID: clusterID, PostID: seed.Post.ID, Similarity: 1.0},
		}

		for _, neighbor := range d.nearestUnassigned(seed, candidates, assigned) {
			assigned[neighbor.post.Post.ID] = true
			members = append(members, domain.ClusterMember{
				ClusterID:  clusterID,
				PostID:     neighbor.post.Post.ID,
				Similarity: neighbor.similarity,
			})
			stats.Duplicates++
		}

		if err := d.clusters.AddMembers(ctx, members); err != nil {
			return stats, fmt.Errorf("add cluster members: %w", err)
		}
		stats.Clusters++
	}

	d.logger.Info("dedup pass done", "posts", stats.Posts,
		"clusters", stats.Clusters, "duplicates", stats.Duplicates)
	return stats, nil
}

type scoredNeighbor struct {
	post       domain.EnrichedPost
	similarity float64
}

// nearestUnassigned returns the seed's top-K unassigned neighbors whose
// cosine similarity clears the threshold, most similar first.
func (d *Deduper) nearestUnassigned(seed domain.EnrichedPost, candidates []domain.EnrichedPost, assigned map[int64]bool) []scoredNeighbor {
	var scored []scoredNeighbor
	for _, candidate := range candidates {
		if assigned[candidate.Post.ID] {
			continue
		}
		similarity := cosineSimilarity(seed.Post.Embedding, candidate.Post.Embedding)
		if similarity >= d.threshold {
			scored = append(scored, scoredNeighbor{post: candidate, similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].post.Post.ID < scored[j].post.Post.ID
	})
	if len(scored) > d.topK {
		scored = scored[:d.topK]
	}
	return scored
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
