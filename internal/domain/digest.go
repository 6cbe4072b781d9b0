package domain

import "time"

// Cluster groups near-duplicate posts inside one window. Clusters are
// cleared and rebuilt in full on every dedup run.
type Cluster struct {
	ID                   int64
	WindowID             int64
	Label                string
	RepresentativePostID int64
	CreatedAt            time.Time
}

// ClusterMember links a post to its cluster with the cosine similarity
// relative to the representative (1.0 for the representative itself).
type ClusterMember struct {
	ClusterID  int64
	PostID     int64
	Similarity float64
}

// Digest is the published artifact for one window, one-to-one by
// WindowID. A non-nil PublishedAt is the durable idempotency marker.
type Digest struct {
	ID          int64
	WindowID    int64
	ChannelID   int64
	MessageIDs  []int64
	Content     string
	Stats       map[string]int
	PublishedAt *time.Time
}
