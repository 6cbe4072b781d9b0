package usecase

import (
	"fmt"
	"html"
	"strings"

	"aidigest/internal/domain"
)

// MaxMessageLength is the hard cap of one published message, kept a bit
// under the Telegram 4096 limit to leave room for HTML entities.
const MaxMessageLength = 3900

var categoryBadges = map[domain.Category]string{
	domain.CategoryLLMRelease:      "🚀",
	domain.CategoryPracticeInsight: "🛠",
	domain.CategoryAnalysisOpinion: "🧠",
	domain.CategoryDeals:           "💸",
	domain.CategoryOtherUseful:     "📌",
	domain.CategoryNoise:           "🔇",
}

// RenderDigest renders the selected content into one HTML document.
// Blocks are separated by blank lines so the splitter can break between
// them.
func RenderDigest(data DigestData) string {
	var b strings.Builder

	day := data.Window.EndAt.Format("02.01.2006")
	fmt.Fprintf(&b, "<b>AI-дайджест за %s</b>\n", day)
	fmt.Fprintf(&b, "<i>%s — %s UTC</i>\n\n",
		data.Window.StartAt.Format("02.01 15:04"),
		data.Window.EndAt.Format("02.01 15:04"))

	if len(data.TopGlobal) == 0 && len(data.Channels) == 0 {
		b.WriteString("Сегодня без значимых новостей.\n")
		return strings.TrimRight(b.String(), "\n")
	}

	if len(data.TopGlobal) > 0 {
		b.WriteString("<b>Главное</b>\n\n")
		for i, post := range data.TopGlobal {
			renderItem(&b, i+1, post)
		}
	}

	for _, section := range data.Channels {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(section.Channel.Title))
		for i, post := range section.Posts {
			renderItem(&b, i+1, post)
		}
		if section.Hidden > 0 {
			fmt.Fprintf(&b, "<i>…и ещё %d</i>\n\n", section.Hidden)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderItem(b *strings.Builder, index int, post domain.EnrichedPost) {
	badge := categoryBadges[post.Category()]
	keyPoint := post.Post.Text
	why := ""
	if post.Summary != nil {
		keyPoint = post.Summary.KeyPoint
		why = post.Summary.WhyItMatters
	}

	fmt.Fprintf(b, "%d. %s <a href=\"%s\">%s</a> (%s)\n",
		index, badge, post.Post.Permalink,
		html.EscapeString(keyPoint),
		html.EscapeString(post.SourceName()))
	if why != "" {
		fmt.Fprintf(b, "%s\n", html.EscapeString(why))
	}
	b.WriteString("\n")
}

// SplitMessage breaks rendered HTML into messages of at most maxLen
// runes, preferring blank-line boundaries, then line boundaries, and
// hard-cutting only as a last resort.
func SplitMessage(content string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	if len([]rune(content)) <= maxLen {
		return []string{content}
	}

	var messages []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			messages = append(messages, trimmed)
		}
		current.Reset()
		currentLen = 0
	}

	for _, block := range strings.Split(content, "\n\n") {
		for _, piece := range splitBlock(block, maxLen) {
			pieceLen := len([]rune(piece))
			sepLen := 0
			if currentLen > 0 {
				sepLen = 2
			}
			if currentLen+sepLen+pieceLen > maxLen {
				flush()
			}
			if currentLen > 0 {
				current.WriteString("\n\n")
				currentLen += 2
			}
			current.WriteString(piece)
			currentLen += pieceLen
		}
	}
	flush()
	return messages
}

// splitBlock cuts one oversized block on line boundaries, then on rune
// boundaries.
func splitBlock(block string, maxLen int) []string {
	if len([]rune(block)) <= maxLen {
		return []string{block}
	}

	var pieces []string
	var current strings.Builder
	currentLen := 0
	for _, line := range strings.Split(block, "\n") {
		runes := []rune(line)
		for len(runes) > maxLen {
			pieces = appendPiece(pieces, &current, &currentLen)
			pieces = append(pieces, string(runes[:maxLen]))
			runes = runes[maxLen:]
		}
		lineLen := len(runes)
		sepLen := 0
		if currentLen > 0 {
			sepLen = 1
		}
		if currentLen+sepLen+lineLen > maxLen {
			pieces = appendPiece(pieces, &current, &currentLen)
		}
		if currentLen > 0 {
			current.WriteRune('\n')
			currentLen++
		}
		current.WriteString(string(runes))
		currentLen += lineLen
	}
	return appendPiece(pieces, &current, &currentLen)
}

func appendPiece(pieces []string, current *strings.Builder, currentLen *int) []string {
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
		current.Reset()
		*currentLen = 0
	}
	return pieces
}
