package domain

import "time"

// Channel is a tracked source of posts.
type Channel struct {
	ID            int64
	PeerID        int64
	Username      string
	Title         string
	IsActive      bool
	AddedAt       time.Time
	LastFetchedAt *time.Time
}

// Post is one ingested content item. (ChannelID, MessageID) is unique;
// re-ingesting an edited post updates text and hash in place.
type Post struct {
	ID          int64
	ChannelID   int64
	MessageID   int64
	PostedAt    time.Time
	EditedAt    *time.Time
	Text        string
	HasMedia    bool
	Views       int64
	Forwards    int64
	Permalink   string
	ContentHash string
	Lang        string
	Embedding   []float32
	CreatedAt   time.Time
}

// FetchedPost is a raw item returned by a source client before it is
// persisted.
type FetchedPost struct {
	MessageID   int64
	PostedAt    time.Time
	EditedAt    *time.Time
	Text        string
	HasMedia    bool
	Views       int64
	Forwards    int64
	Permalink   string
	ContentHash string
}
