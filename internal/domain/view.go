package domain

// EnrichedPost is a post joined with its channel and (possibly absent)
// summary, as read by the dedup and ranking stages.
type EnrichedPost struct {
	Post    Post
	Channel Channel
	Summary *Summary
}

// Importance returns the summary importance, or zero when the post has
// no summary yet. Unsummarized posts rank last everywhere.
func (e EnrichedPost) Importance() int {
	if e.Summary == nil {
		return 0
	}
	return e.Summary.Importance
}

// Category returns the summary category, defaulting unsummarized posts
// to the lowest-priority bucket.
func (e EnrichedPost) Category() Category {
	if e.Summary == nil {
		return CategoryNoise
	}
	return e.Summary.Category
}

// SourceName renders the channel reference used in digest output.
func (e EnrichedPost) SourceName() string {
	if e.Channel.Username != "" {
		return "@" + e.Channel.Username
	}
	return e.Channel.Title
}

// ClusterRow is one cluster membership joined with the member post, as
// read by the ranking stage.
type ClusterRow struct {
	ClusterID            int64
	RepresentativePostID int64
	Similarity           float64
	Post                 EnrichedPost
}
