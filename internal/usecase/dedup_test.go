package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidigest/internal/domain"
	"aidigest/internal/store"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestDeduperClustersNearDuplicates(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	channel, err := st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "chan", Title: "chan", IsActive: true,
	})
	require.NoError(t, err)

	postedAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	window, err := st.Windows().GetOrCreate(ctx, postedAt.Add(-time.Hour), postedAt.Add(time.Hour))
	require.NoError(t, err)

	mkPost := func(messageID int64, importance int, vec []float32) domain.Post {
		post, err := st.Posts().Upsert(ctx, domain.Post{
			ChannelID: channel.ID, MessageID: messageID,
			PostedAt: postedAt.Add(time.Duration(messageID) * time.Minute),
			Text:     "text", ContentHash: fmt.Sprintf("h-%d", messageID),
		})
		require.NoError(t, err)
		require.NoError(t, st.Posts().UpdateEmbedding(ctx, post.ID, vec))
		if importance > 0 {
			require.NoError(t, st.Summaries().Upsert(ctx, domain.Summary{
				PostID: post.ID, KeyPoint: "k",
				Category: domain.CategoryLLMRelease, Importance: importance,
			}))
		}
		return post
	}

	// Two near-duplicates and one orthogonal post.
	seed := mkPost(1, 5, []float32{1, 0, 0})
	near := mkPost(2, 3, []float32{0.999, 0.02, 0})
	other := mkPost(3, 4, []float32{0, 1, 0})

	deduper := NewDeduper(st.Posts(), st.Clusters(), 0.88, 80, testLogger())
	stats, err := deduper.Run(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Posts)
	assert.Equal(t, 2, stats.Clusters)
	assert.Equal(t, 1, stats.Duplicates)

	rows, err := st.Clusters().ListForWindow(ctx, window.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byPost := map[int64]domain.ClusterRow{}
	for _, row := range rows {
		byPost[row.Post.Post.ID] = row
	}
	// The most important post seeds the cluster and absorbs its neighbor.
	assert.Equal(t, seed.ID, byPost[seed.ID].RepresentativePostID)
	assert.Equal(t, byPost[seed.ID].ClusterID, byPost[near.ID].ClusterID)
	assert.GreaterOrEqual(t, byPost[near.ID].Similarity, 0.88)
	// The orthogonal post stays a singleton.
	assert.NotEqual(t, byPost[seed.ID].ClusterID, byPost[other.ID].ClusterID)
	assert.Equal(t, other.ID, byPost[other.ID].RepresentativePostID)
}

func TestDeduperRebuildsFromScratch(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	channel, err := st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "chan", Title: "chan", IsActive: true,
	})
	require.NoError(t, err)

	postedAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	window, err := st.Windows().GetOrCreate(ctx, postedAt.Add(-time.Hour), postedAt.Add(time.Hour))
	require.NoError(t, err)

	post, err := st.Posts().Upsert(ctx, domain.Post{
		ChannelID: channel.ID, MessageID: 1, PostedAt: postedAt,
		Text: "text", ContentHash: "h1",
	})
	require.NoError(t, err)
	require.NoError(t, st.Posts().UpdateEmbedding(ctx, post.ID, []float32{1, 0}))

	deduper := NewDeduper(st.Posts(), st.Clusters(), 0.88, 80, testLogger())

	for range 2 {
		stats, err := deduper.Run(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Clusters)
	}

	rows, err := st.Clusters().ListForWindow(ctx, window.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
