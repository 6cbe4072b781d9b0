package telegram

import (
	"log/slog"

	"golang.org/x/time/rate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// unthrottled drops the politeness delay so tests run fast.
func unthrottled(s *PreviewScraper) *PreviewScraper {
	s.limiter = rate.NewLimiter(rate.Inf, 1)
	return s
}
