package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"aidigest/internal/domain"
	"aidigest/internal/ports"
)

// SummarizeStats summarizes one enrichment pass.
type SummarizeStats struct {
	Summarized  int
	CopiedExact int
	Skipped     int
	Errors      int
}

// Summarizer enriches window posts with structured summaries. Exact
// duplicates (same content hash) reuse an existing summary instead of
// calling the model again.
type Summarizer struct {
	llm       ports.Summarizer
	posts     ports.PostRepository
	summaries ports.SummaryRepository
	hashCache *gocache.Cache
	logger    *slog.Logger
}

// NewSummarizer wires the summarization stage.
func NewSummarizer(llm ports.Summarizer, posts ports.PostRepository, summaries ports.SummaryRepository, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		llm:       llm,
		posts:     posts,
		summaries: summaries,
		hashCache: gocache.New(24*time.Hour, time.Hour),
		logger:    logger.With("component", "summarize"),
	}
}

// Run summarizes every window post still lacking a summary. A failing
// post is logged and counted; it never aborts the stage.
func (s *Summarizer) Run(ctx context.Context, window domain.Window) (SummarizeStats, error) {
	pending, err := s.posts.ListMissingSummary(ctx, window.StartAt, window.EndAt)
	if err != nil {
		return SummarizeStats{}, fmt.Errorf("list posts missing summary: %w", err)
	}

	var stats SummarizeStats
	for _, post := range pending {
		copied, err := s.copyByHash(ctx, post)
		if err != nil {
			stats.Errors++
			s.logger.Error("hash lookup failed", "post_id", post.ID, "error", err)
			continue
		}
		if copied {
			stats.CopiedExact++
			continue
		}

		if post.Text == "" {
			stats.Skipped++
			continue
		}

		payload, err := s.llm.Summarize(ctx, buildPrompt(post.Text))
		if err != nil {
			stats.Errors++
			s.logger.Error("summarize failed", "post_id", post.ID, "error", err)
			continue
		}

		summary := NormalizeSummary(post.ID, post.Text, payload)
		if err := s.summaries.Upsert(ctx, summary); err != nil {
			stats.Errors++
			s.logger.Error("summary upsert failed", "post_id", post.ID, "error", err)
			continue
		}
		s.hashCache.Set(post.ContentHash, summary, gocache.DefaultExpiration)
		stats.Summarized++
	}

	s.logger.Info("summarize pass done", "summarized", stats.Summarized,
		"copied", stats.CopiedExact, "skipped", stats.Skipped, "errors", stats.Errors)
	return stats, nil
}

// copyByHash reuses a summary of any earlier post sharing the content
// hash, checking the in-memory cache before the store.
func (s *Summarizer) copyByHash(ctx context.Context, post domain.Post) (bool, error) {
	var existing *domain.Summary
	if cached, ok := s.hashCache.Get(post.ContentHash); ok {
		summary := cached.(domain.Summary)
		existing = &summary
	} else {
		found, err := s.summaries.FindByContentHash(ctx, post.ContentHash)
		if err != nil {
			return false, err
		}
		existing = found
	}
	if existing == nil {
		return false, nil
	}

	reused := *existing
	reused.PostID = post.ID
	if err := s.summaries.Upsert(ctx, reused); err != nil {
		return false, err
	}
	s.hashCache.Set(post.ContentHash, reused, gocache.DefaultExpiration)
	return true, nil
}

const promptTemplate = `Ты — редактор ежедневного дайджеста Telegram-каналов про ИИ.
Прочитай пост и верни строго JSON-объект с полями:
- "key_point": одно предложение, главная мысль поста своими словами;
- "why_it_matters": одно предложение, почему это важно читателю, не цитируя пост;
- "tags": до 3 тегов из списка [News, Research, Tools, Product, Opinion, Safety, Policy, Business];
- "category": одно из LLM_RELEASE, PRACTICE_INSIGHT, ANALYSIS_OPINION, DEALS, OTHER_USEFUL, NOISE;
- "importance": целое от 1 до 5.

Пост:
%s`

func buildPrompt(text string) string {
	const maxPromptText = 6000
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	return fmt.Sprintf(promptTemplate, text)
}

// noiseMarkers force the NOISE category regardless of what the model
// answered.
var noiseMarkers = []string{
	"розыгрыш",
	"giveaway",
	"промокод",
	"подпишись",
	"подписывайтесь",
	"реклама",
	"erid",
}

var whyFallbacks = map[domain.Category]string{
	domain.CategoryLLMRelease:      "Откройте пост, чтобы узнать детали релиза.",
	domain.CategoryPracticeInsight: "Откройте пост, чтобы забрать практический приём.",
	domain.CategoryAnalysisOpinion: "Откройте пост, чтобы оценить аргументацию автора.",
	domain.CategoryDeals:           "Откройте пост, чтобы успеть воспользоваться предложением.",
	domain.CategoryOtherUseful:     "Откройте пост, чтобы узнать подробности.",
	domain.CategoryNoise:           "Откройте пост, если интересно.",
}

// NormalizeSummary enforces the summary contract on a raw model answer:
// closed category vocabulary, importance clamped to the category band,
// tags restricted to the allowed list, and a single-sentence
// why-it-matters that does not quote the source.
func NormalizeSummary(postID int64, sourceText string, payload ports.SummaryPayload) domain.Summary {
	category := domain.ParseCategory(strings.ToUpper(strings.TrimSpace(payload.Category)))
	if isNoise(sourceText, payload.KeyPoint) {
		category = domain.CategoryNoise
	}

	why := strings.TrimSpace(payload.WhyItMatters)
	if why == "" || !singleSentence(why) || quotesSource(why, sourceText) {
		why = whyFallbacks[category]
	}

	return domain.Summary{
		PostID:       postID,
		KeyPoint:     strings.TrimSpace(payload.KeyPoint),
		WhyItMatters: why,
		Tags:         filterTags(payload.Tags),
		Category:     category,
		Importance:   category.ClampImportance(payload.Importance),
	}
}

// domainMarkers keep genuinely on-topic posts out of the noise bucket
// even when they carry promotional wording.
var domainMarkers = []string{
	"модел",
	"нейросет",
	"llm",
	"gpt",
	"агент",
	"бенчмарк",
	"датасет",
	"api",
}

func isNoise(text, keyPoint string) bool {
	lower := strings.ToLower(text + " " + keyPoint)
	for _, marker := range domainMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// singleSentence rejects text with terminal punctuation before its end.
func singleSentence(text string) bool {
	trimmed := strings.TrimRight(text, ".!?")
	return !strings.ContainsAny(trimmed, ".!?")
}

// quotesSource reports whether why shares a contiguous run of 6 or more
// words with the source text.
func quotesSource(why, source string) bool {
	const runLength = 6
	whyWords := strings.Fields(strings.ToLower(why))
	if len(whyWords) < runLength {
		return false
	}
	lowerSource := strings.ToLower(source)
	for i := 0; i+runLength <= len(whyWords); i++ {
		run := strings.Join(whyWords[i:i+runLength], " ")
		if strings.Contains(lowerSource, run) {
			return true
		}
	}
	return false
}

func filterTags(raw []string) []string {
	const maxTags = 3
	allowed := make(map[string]string, len(domain.AllowedTags))
	for _, tag := range domain.AllowedTags {
		allowed[strings.ToLower(tag)] = tag
	}

	var tags []string
	seen := map[string]bool{}
	for _, tag := range raw {
		canonical, ok := allowed[strings.ToLower(strings.TrimSpace(tag))]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		tags = append(tags, canonical)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
