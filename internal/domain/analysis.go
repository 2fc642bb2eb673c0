package domain

import "time"

// StoreSentiment aggregates rating sentiment for one store
type StoreSentiment struct {
	AverageRating      float64 `json:"average_rating"`
	TotalReviews       int     `json:"total_reviews"`
	PositivePercentage float64 `json:"positive_percentage"`
	NeutralPercentage  float64 `json:"neutral_percentage"`
	NegativePercentage float64 `json:"negative_percentage"`
	SentimentLabel     string  `json:"sentiment_label"`
}

// ProsCons holds LLM-extracted positives and negatives
type ProsCons struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// Theme is a recurring topic across reviews
type Theme struct {
	Theme       string `json:"theme"`
	Frequency   string `json:"frequency"`
	Description string `json:"description"`
}

// AnalysisReport is the comparison report for a set of selected products.
// When no reviews exist, only ComparisonID, Error and Message are set.
type AnalysisReport struct {
	ComparisonID       string                    `json:"comparison_id"`
	Products           map[Store]Product         `json:"products,omitempty"`
	TotalReviews       int                       `json:"total_reviews"`
	SentimentAnalysis  map[Store]StoreSentiment  `json:"sentiment_analysis,omitempty"`
	ProsCons           *ProsCons                 `json:"pros_cons,omitempty"`
	RatingDistribution map[Store]map[int]float64 `json:"rating_distribution,omitempty"`
	CommonThemes       []Theme                   `json:"common_themes,omitempty"`
	OverallSummary     string                    `json:"overall_summary,omitempty"`
	AnalysisTimestamp  *time.Time                `json:"analysis_timestamp,omitempty"`
	Error              string                    `json:"error,omitempty"`
	Message            string                    `json:"message,omitempty"`
}

// HasReviews reports whether the report carries real statistics
func (r *AnalysisReport) HasReviews() bool {
	return r != nil && r.Error == "" && r.TotalReviews > 0
}

// Source is a cited review snippet backing an answer
type Source struct {
	Store       Store   `json:"store"`
	Rating      int     `json:"rating"`
	TextSnippet string  `json:"text_snippet"`
	Similarity  float64 `json:"similarity"`
}

// Answer is the RAG response to a free-text question
type Answer struct {
	ComparisonID string    `json:"comparison_id,omitempty"`
	Question     string    `json:"question,omitempty"`
	Answer       string    `json:"answer"`
	Sources      []Source  `json:"sources"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}
