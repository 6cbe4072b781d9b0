package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
	"aidigest/internal/store"
)

func TestNormalizeSummaryUnknownCategory(t *testing.T) {
	summary := NormalizeSummary(1, "some post", ports.SummaryPayload{
		KeyPoint:     "key",
		WhyItMatters: "Это важно для всех.",
		Category:     "BREAKING_NEWS",
		Importance:   5,
	})

	assert.Equal(t, domain.CategoryOtherUseful, summary.Category)
	// OTHER_USEFUL pins importance to 3.
	assert.Equal(t, 3, summary.Importance)
}

func TestNormalizeSummaryClampsImportanceToBand(t *testing.T) {
	low := NormalizeSummary(1, "post", ports.SummaryPayload{
		Category: "LLM_RELEASE", Importance: 2, WhyItMatters: "Ок.",
	})
	assert.Equal(t, 5, low.Importance)

	high := NormalizeSummary(1, "post", ports.SummaryPayload{
		Category: "NOISE", Importance: 5, WhyItMatters: "Ок.",
	})
	assert.Equal(t, 2, high.Importance)
}

func TestNormalizeSummaryNoiseMarkerOverridesCategory(t *testing.T) {
	summary := NormalizeSummary(1, "Большой розыгрыш подписки!", ports.SummaryPayload{
		Category:     "LLM_RELEASE",
		Importance:   5,
		WhyItMatters: "Ок.",
	})

	assert.Equal(t, domain.CategoryNoise, summary.Category)
	assert.LessOrEqual(t, summary.Importance, 2)
}

func TestNormalizeSummaryKeepsCategoryWithDomainVocabulary(t *testing.T) {
	summary := NormalizeSummary(1, "Промокод на доступ к новой модели", ports.SummaryPayload{
		Category:     "LLM_RELEASE",
		Importance:   5,
		WhyItMatters: "Ок.",
	})

	assert.Equal(t, domain.CategoryLLMRelease, summary.Category)
}

func TestNormalizeSummaryWhyFallbacks(t *testing.T) {
	source := "один два три четыре пять шесть семь восемь"

	cases := []struct {
		name string
		why  string
	}{
		{"empty", ""},
		{"multi sentence", "Первое предложение. Второе предложение."},
		{"quotes source", "Тут цитата: один два три четыре пять шесть слов подряд"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := NormalizeSummary(1, source, ports.SummaryPayload{
				Category:     "DEALS",
				Importance:   3,
				WhyItMatters: tc.why,
			})
			assert.Equal(t, whyFallbacks[domain.CategoryDeals], summary.WhyItMatters)
		})
	}

	kept := NormalizeSummary(1, source, ports.SummaryPayload{
		Category:     "DEALS",
		Importance:   3,
		WhyItMatters: "Самостоятельная оценка без цитирования.",
	})
	assert.Equal(t, "Самостоятельная оценка без цитирования.", kept.WhyItMatters)
}

func TestNormalizeSummaryFiltersTags(t *testing.T) {
	summary := NormalizeSummary(1, "post", ports.SummaryPayload{
		Category:     "OTHER_USEFUL",
		Importance:   3,
		WhyItMatters: "Ок.",
		Tags:         []string{"news", "Research", "Memes", "tools", "Product", "News"},
	})

	assert.Equal(t, []string{"News", "Research", "Tools"}, summary.Tags)
}

func TestSummarizerRunCopiesExactDuplicates(t *testing.T) {
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

	mkPost := func(messageID int64, text, hash string) domain.Post {
		post, err := st.Posts().Upsert(ctx, domain.Post{
			ChannelID: channel.ID, MessageID: messageID, PostedAt: postedAt,
			Text: text, ContentHash: hash,
		})
		require.NoError(t, err)
		return post
	}
	mkPost(1, "release announcement", "dup-hash")
	duplicate := mkPost(2, "release announcement", "dup-hash")
	mkPost(3, "", "media-hash")

	llm := &fakeSummarizer{payloads: map[string]ports.SummaryPayload{
		"release announcement": {
			KeyPoint:     "Вышла новая модель",
			WhyItMatters: "Меняет расклад на рынке.",
			Category:     "LLM_RELEASE",
			Importance:   5,
		},
	}}

	stage := NewSummarizer(llm, st.Posts(), st.Summaries(), testLogger())
	stats, err := stage.Run(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Summarized)
	assert.Equal(t, 1, stats.CopiedExact)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, llm.calls)

	copied, err := st.Summaries().Get(ctx, duplicate.ID)
	require.NoError(t, err)
	require.NotNil(t, copied)
	assert.Equal(t, "Вышла новая модель", copied.KeyPoint)

	// A second pass finds nothing left to do.
	stats, err = stage.Run(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Summarized)
	assert.Equal(t, 0, stats.CopiedExact)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, llm.calls)
}
