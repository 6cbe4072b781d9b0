// Package normalize canonicalizes post text so that exact duplicates
// hash identically regardless of whitespace noise or promotional tails.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	zeroWidthRe  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	inlineWSRe   = regexp.MustCompile(`[ \t]+`)
	emptyLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Recurring channel tails that carry no content. Keep the list explicit
// and easy to extend.
var tailStopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^подписывай(тесь|ся)\b.*`),
	regexp.MustCompile(`(?i)^реклама\b.*`),
	regexp.MustCompile(`(?i)^источник:?.*`),
	regexp.MustCompile(`(?i)^читайте также\b.*`),
	regexp.MustCompile(`(?i)^(https?://)?t\.me/\S+$`),
	regexp.MustCompile(`(?i)^поддерж(ать|ите) канал\b.*`),
	regexp.MustCompile(`(?i).*\bdonate\b.*`),
}

func isTailStopLine(line string) bool {
	for _, pattern := range tailStopPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// Text collapses zero-width characters and whitespace, squeezes blank
// runs, and strips trailing promotional lines.
func Text(text string) string {
	cleaned := zeroWidthRe.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")

	var compact []string
	for _, raw := range strings.Split(cleaned, "\n") {
		line := strings.TrimSpace(inlineWSRe.ReplaceAllString(raw, " "))
		if line == "" {
			if len(compact) > 0 && compact[len(compact)-1] == "" {
				continue
			}
			compact = append(compact, "")
			continue
		}
		compact = append(compact, line)
	}

	for len(compact) > 0 && compact[len(compact)-1] == "" {
		compact = compact[:len(compact)-1]
	}

	for len(compact) > 0 && isTailStopLine(compact[len(compact)-1]) {
		compact = compact[:len(compact)-1]
		for len(compact) > 0 && compact[len(compact)-1] == "" {
			compact = compact[:len(compact)-1]
		}
	}

	for len(compact) > 0 && compact[0] == "" {
		compact = compact[1:]
	}

	joined := strings.TrimSpace(strings.Join(compact, "\n"))
	return emptyLinesRe.ReplaceAllString(joined, "\n\n")
}

// ContentHash derives the exact-dedup key from normalized text. Posts
// without text fall back to a payload unique per post so they never
// collide with each other.
func ContentHash(textNorm string, hasMedia bool, permalink string, postedAt time.Time) string {
	payload := strings.TrimSpace(textNorm)
	if payload == "" {
		kind := "empty"
		if hasMedia {
			kind = "media-only"
		}
		payload = fmt.Sprintf("%s:%s:%s", kind, postedAt.UTC().Format(time.RFC3339), permalink)
	}

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
