package domain

import "time"

// Category is the closed classification vocabulary for summaries.
// Unknown values coming back from the model map to CategoryOtherUseful.
type Category string

const (
	CategoryLLMRelease      Category = "LLM_RELEASE"
	CategoryPracticeInsight Category = "PRACTICE_INSIGHT"
	CategoryAnalysisOpinion Category = "ANALYSIS_OPINION"
	CategoryDeals           Category = "DEALS"
	CategoryOtherUseful     Category = "OTHER_USEFUL"
	CategoryNoise           Category = "NOISE"
)

// Categories lists every valid category value.
var Categories = []Category{
	CategoryLLMRelease,
	CategoryPracticeInsight,
	CategoryAnalysisOpinion,
	CategoryDeals,
	CategoryOtherUseful,
	CategoryNoise,
}

// ImportanceBand is the inclusive importance range a category permits.
type ImportanceBand struct {
	Low  int
	High int
}

var importanceBands = map[Category]ImportanceBand{
	CategoryLLMRelease:      {Low: 5, High: 5},
	CategoryPracticeInsight: {Low: 4, High: 4},
	CategoryAnalysisOpinion: {Low: 4, High: 4},
	CategoryDeals:           {Low: 3, High: 4},
	CategoryOtherUseful:     {Low: 3, High: 3},
	CategoryNoise:           {Low: 1, High: 2},
}

// ParseCategory maps a raw string to a valid category, defaulting to
// CategoryOtherUseful for unknown values.
func ParseCategory(raw string) Category {
	for _, c := range Categories {
		if string(c) == raw {
			return c
		}
	}
	return CategoryOtherUseful
}

// Band returns the importance band for the category.
func (c Category) Band() ImportanceBand {
	if band, ok := importanceBands[c]; ok {
		return band
	}
	return importanceBands[CategoryOtherUseful]
}

// ClampImportance forces a raw importance value into the category band.
func (c Category) ClampImportance(raw int) int {
	band := c.Band()
	if raw < band.Low {
		return band.Low
	}
	if raw > band.High {
		return band.High
	}
	return raw
}

// AllowedTags is the closed tag vocabulary for summaries.
var AllowedTags = []string{
	"News", "Research", "Tools", "Product", "Opinion", "Safety", "Policy", "Business",
}

// Summary is the LLM enrichment for one post, one-to-one by PostID.
type Summary struct {
	PostID       int64
	KeyPoint     string
	WhyItMatters string
	Tags         []string
	Category     Category
	Importance   int
	CreatedAt    time.Time
}
