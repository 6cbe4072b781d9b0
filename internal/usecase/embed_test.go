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

func TestEmbedderBatchesAndStoresVectors(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	channel, err := st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "chan", Title: "chan", IsActive: true,
	})
	require.NoError(t, err)

	postedAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	window := domain.Window{StartAt: postedAt.Add(-time.Hour), EndAt: postedAt.Add(time.Hour)}

	for i := range 5 {
		_, err := st.Posts().Upsert(ctx, domain.Post{
			ChannelID: channel.ID, MessageID: int64(i + 1), PostedAt: postedAt,
			Text: fmt.Sprintf("text %d", i), ContentHash: fmt.Sprintf("h%d", i),
		})
		require.NoError(t, err)
	}
	// A media-only post without a summary cannot be embedded.
	_, err = st.Posts().Upsert(ctx, domain.Post{
		ChannelID: channel.ID, MessageID: 99, PostedAt: postedAt,
		Text: "", ContentHash: "media",
	})
	require.NoError(t, err)

	llm := &fakeEmbedder{dim: 4}
	stage := NewEmbedder(llm, st.Posts(), st.Summaries(), 2, testLogger())

	stats, err := stage.Run(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Embedded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	// 5 posts in batches of 2.
	assert.Equal(t, 3, llm.batches)

	remaining, err := st.Posts().CountWithoutEmbedding(ctx, window.StartAt, window.EndAt)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestEmbedderCountsFailedBatches(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	channel, err := st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "chan", Title: "chan", IsActive: true,
	})
	require.NoError(t, err)

	postedAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	window := domain.Window{StartAt: postedAt.Add(-time.Hour), EndAt: postedAt.Add(time.Hour)}

	for i := range 3 {
		_, err := st.Posts().Upsert(ctx, domain.Post{
			ChannelID: channel.ID, MessageID: int64(i + 1), PostedAt: postedAt,
			Text: fmt.Sprintf("text %d", i), ContentHash: fmt.Sprintf("h%d", i),
		})
		require.NoError(t, err)
	}

	llm := &fakeEmbedder{dim: 4, err: assert.AnError}
	stage := NewEmbedder(llm, st.Posts(), st.Summaries(), 16, testLogger())

	stats, err := stage.Run(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Embedded)
	assert.Equal(t, 3, stats.Failed)
}
