package domain

import "time"

// WindowStatus enumerates pipeline milestones for one daily window.
type WindowStatus string

const (
	WindowNew        WindowStatus = "new"
	WindowIngested   WindowStatus = "ingested"
	WindowSummarized WindowStatus = "summarized"
	WindowEmbedded   WindowStatus = "embedded"
	WindowDeduped    WindowStatus = "deduped"
	WindowPublished  WindowStatus = "published"
	WindowFailed     WindowStatus = "failed"
)

// Window is the half-open 24h batch boundary scoping one pipeline run.
// The (StartAt, EndAt) pair is unique; the orchestrator is the only
// writer of Status.
type Window struct {
	ID        int64
	StartAt   time.Time
	EndAt     time.Time
	Status    WindowStatus
	CreatedAt time.Time
}
