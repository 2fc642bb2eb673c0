package domain

// Review is a single customer review as scraped from a store
type Review struct {
	Text         string `json:"review_text"`
	Title        string `json:"title"`
	Rating       int    `json:"rating"`
	Date         string `json:"review_date"`
	HelpfulVotes int    `json:"helpful_votes"`
	ProductName  string `json:"product_name"`
	Author       string `json:"author"`
	Verified     bool   `json:"verified_purchase"`
}

// StoredReview is a review read back from the vector cache
type StoredReview struct {
	Review
	ID           string  `json:"id"`
	Store        Store   `json:"store"`
	ProductID    string  `json:"product_id"`
	ComparisonID string  `json:"comparison_id"`
	Similarity   float64 `json:"similarity_score"`
}

// ReviewExtraction is the result of extracting reviews for a comparison
type ReviewExtraction struct {
	ComparisonID string             `json:"comparison_id"`
	Reviews      map[Store][]Review `json:"reviews"`
	TotalReviews int                `json:"total_reviews"`
	FromCache    bool               `json:"from_cache"`
	Failures     map[Store]string   `json:"failures,omitempty"`
}
