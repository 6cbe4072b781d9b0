package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidigest/internal/domain"
	"aidigest/internal/store"
)

func TestIngesterStoresWindowPosts(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	_, err = st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "chan", Title: "chan", IsActive: true,
	})
	require.NoError(t, err)

	startAt := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	endAt := startAt.AddDate(0, 0, 1)
	window := domain.Window{StartAt: startAt, EndAt: endAt}

	source := &fakeSource{posts: map[string][]domain.FetchedPost{
		"chan": {
			fetchedPost(1, startAt.Add(time.Hour), "первый пост о моделях"),
			fetchedPost(2, startAt.Add(2*time.Hour), "second post in english"),
		},
	}}

	stage := NewIngester(source, st.Channels(), st.Posts(), testLogger())
	stats, err := stage.Run(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Channels)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Errors)

	posts, err := st.Posts().ListInWindow(ctx, startAt, endAt)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "ru", posts[0].Post.Lang)
	assert.Equal(t, "en", posts[1].Post.Lang)

	updated, err := st.Channels().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.NotNil(t, updated[0].LastFetchedAt)

	// Re-ingestion counts updates, not new posts.
	stats, err = stage.Run(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
	assert.Equal(t, 2, stats.Updated)
}

func TestIngesterIsolatesChannelFailures(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	_, err = st.Channels().Upsert(ctx, domain.Channel{
		PeerID: 1, Username: "broken", Title: "broken", IsActive: true,
	})
	require.NoError(t, err)

	startAt := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	window := domain.Window{StartAt: startAt, EndAt: startAt.AddDate(0, 0, 1)}

	source := &fakeSource{err: assert.AnError}
	stage := NewIngester(source, st.Channels(), st.Posts(), testLogger())

	stats, err := stage.Run(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Fetched)
}
