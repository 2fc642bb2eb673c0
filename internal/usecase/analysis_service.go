package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	analysisKeyPrefix    = "analysis:"
	analysisReviewsQuery = "product review analysis"
	analysisBatchSize    = 50
	llmSampleSize        = 20
	maxThemes            = 5

	noReviewsError   = "No reviews found for analysis"
	noReviewsMessage = "Please try extracting reviews first or ensure the products have reviews available."

	notEnoughDataAnswer = "I don't have enough review data to answer that question."
	answerErrorAnswer   = "I encountered an error while processing your question."
	noProperAnswer      = "I couldn't generate a proper answer."
)

// AnalysisServiceConfig holds configuration for the analysis service
type AnalysisServiceConfig struct {
	ReportTTL      time.Duration
	CorpusTopK     int
	QuestionTopK   int
	ContextReviews int
}

// AnalysisService builds comparison reports and answers questions over cached reviews
type AnalysisService struct {
	cache  *VectorCacheStore
	kv     domain.CacheRepository
	llm    domain.LLMClient
	config AnalysisServiceConfig
}

// NewAnalysisService creates a new analysis service with dependencies
func NewAnalysisService(cache *VectorCacheStore, kv domain.CacheRepository, llm domain.LLMClient, config AnalysisServiceConfig) *AnalysisService {
	if config.ReportTTL == 0 {
		config.ReportTTL = time.Hour
	}
	if config.CorpusTopK <= 0 {
		config.CorpusTopK = 1000
	}
	if config.QuestionTopK <= 0 {
		config.QuestionTopK = 15
	}
	if config.ContextReviews <= 0 {
		config.ContextReviews = 10
	}
	return &AnalysisService{cache: cache, kv: kv, llm: llm, config: config}
}

// AnalyzeReviews produces the comparison report for the selected products.
// A comparison without stored reviews yields a report carrying only an error message.
// Each sub-analysis that fails is replaced by its fallback value.
func (s *AnalysisService) AnalyzeReviews(ctx context.Context, selected map[domain.Store]domain.Product) (*domain.AnalysisReport, error) {
	if len(selected) == 0 {
		return nil, domain.ErrNoSelection
	}

	comparisonID := domain.ComparisonID(selected)
	cacheKey := analysisKeyPrefix + comparisonID
	log := logrus.WithField("comparison_id", comparisonID)

	if report, ok := s.cachedReport(ctx, cacheKey); ok {
		log.Info("[ANALYSIS] serving cached report")
		return report, nil
	}

	reviews := s.cache.SearchReviewsByComparison(ctx, comparisonID, analysisReviewsQuery, s.config.CorpusTopK)
	if len(reviews) == 0 {
		log.Warn("[ANALYSIS] no reviews stored for comparison")
		return &domain.AnalysisReport{ComparisonID: comparisonID, Error: noReviewsError, Message: noReviewsMessage}, nil
	}
	batch := reviews[:min(analysisBatchSize, len(reviews))]

	var (
		wg           sync.WaitGroup
		sentiment    map[domain.Store]domain.StoreSentiment
		distribution map[domain.Store]map[int]float64
		prosCons     *domain.ProsCons
		themes       []domain.Theme
		summary      string
	)
	run := func(name string, fn func() error, fallback func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.WithError(err).Warnf("[ANALYSIS] %s analysis failed, using fallback", name)
				fallback()
			}
		}()
	}

	run("sentiment", func() error {
		sentiment = AnalyzeSentiment(reviews)
		return nil
	}, func() { sentiment = map[domain.Store]domain.StoreSentiment{} })
	run("rating distribution", func() error {
		distribution = RatingDistribution(reviews)
		return nil
	}, func() { distribution = map[domain.Store]map[int]float64{} })
	run("pros/cons", func() (err error) {
		prosCons, err = s.extractProsCons(ctx, batch)
		return err
	}, func() { prosCons = &domain.ProsCons{Pros: []string{}, Cons: []string{}} })
	run("themes", func() (err error) {
		themes, err = s.extractThemes(ctx, batch)
		return err
	}, func() { themes = []domain.Theme{} })
	run("summary", func() (err error) {
		summary, err = s.summarize(ctx, reviews, selected)
		return err
	}, func() {
		summary = fmt.Sprintf("Analysis completed for %d reviews across %d stores.", len(reviews), len(selected))
	})
	wg.Wait()

	now := time.Now()
	report := &domain.AnalysisReport{
		ComparisonID:       comparisonID,
		Products:           selected,
		TotalReviews:       len(reviews),
		SentimentAnalysis:  sentiment,
		ProsCons:           prosCons,
		RatingDistribution: distribution,
		CommonThemes:       themes,
		OverallSummary:     summary,
		AnalysisTimestamp:  &now,
	}

	if err := s.kv.Set(ctx, cacheKey, report, s.config.ReportTTL); err != nil {
		log.WithError(err).Warn("[ANALYSIS] failed to cache report")
	}

	log.WithField("reviews", len(reviews)).Info("[ANALYSIS] report generated")
	return report, nil
}

func (s *AnalysisService) cachedReport(ctx context.Context, key string) (*domain.AnalysisReport, bool) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logrus.WithError(err).Warn("[ANALYSIS] report cache read failed")
		}
		return nil, false
	}

	var report domain.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil || !report.HasReviews() {
		return nil, false
	}
	return &report, true
}

// SentimentLabel maps an average star rating to its label
func SentimentLabel(avg float64) string {
	switch {
	case avg >= 4.0:
		return "Very Positive"
	case avg >= 3.5:
		return "Positive"
	case avg >= 2.5:
		return "Mixed"
	case avg >= 2.0:
		return "Negative"
	default:
		return "Very Negative"
	}
}

// AnalyzeSentiment aggregates ratings per store into sentiment buckets (>=4 positive, 3 neutral, <=2 negative).
// Ratings outside 1-5 are unparsed values and are skipped, as in RatingDistribution.
func AnalyzeSentiment(reviews []domain.StoredReview) map[domain.Store]domain.StoreSentiment {
	type tally struct{ sum, positive, neutral, negative, total int }
	tallies := map[domain.Store]*tally{}
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		t, ok := tallies[r.Store]
		if !ok {
			t = &tally{}
			tallies[r.Store] = t
		}
		t.sum += r.Rating
		t.total++
		switch {
		case r.Rating >= 4:
			t.positive++
		case r.Rating == 3:
			t.neutral++
		default:
			t.negative++
		}
	}

	out := make(map[domain.Store]domain.StoreSentiment, len(tallies))
	for store, t := range tallies {
		avg := float64(t.sum) / float64(t.total)
		out[store] = domain.StoreSentiment{
			AverageRating:      round(avg, 2),
			TotalReviews:       t.total,
			PositivePercentage: percentage(t.positive, t.total),
			NeutralPercentage:  percentage(t.neutral, t.total),
			NegativePercentage: percentage(t.negative, t.total),
			SentimentLabel:     SentimentLabel(avg),
		}
	}
	return out
}

// RatingDistribution returns, per store, the percentage of reviews at each star rating 1-5
func RatingDistribution(reviews []domain.StoredReview) map[domain.Store]map[int]float64 {
	counts := map[domain.Store]map[int]int{}
	for _, r := range reviews {
		if _, ok := counts[r.Store]; !ok {
			counts[r.Store] = map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
		}
		if r.Rating >= 1 && r.Rating <= 5 {
			counts[r.Store][r.Rating]++
		}
	}

	out := make(map[domain.Store]map[int]float64, len(counts))
	for store, dist := range counts {
		total := 0
		for _, n := range dist {
			total += n
		}
		out[store] = make(map[int]float64, len(dist))
		for rating, n := range dist {
			out[store][rating] = percentage(n, total)
		}
	}
	return out
}

func (s *AnalysisService) extractProsCons(ctx context.Context, reviews []domain.StoredReview) (*domain.ProsCons, error) {
	sample := reviews[:min(llmSampleSize, len(reviews))]
	lines := make([]string, 0, len(sample))
	for _, r := range sample {
		lines = append(lines, fmt.Sprintf("Rating: %d/5 - %s", r.Rating, truncate(r.Text, 200)))
	}

	prompt := fmt.Sprintf(`Analyze these %d product reviews and extract the top pros and cons.

Reviews:
%s

Return ONLY a JSON object:
{"pros": ["list of top 3 positive aspects"], "cons": ["list of top 3 negative aspects"]}`, len(sample), strings.Join(lines, "\n"))

	text, err := s.llm.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var result domain.ProsCons
	if err := decodeLLMJSON(text, &result); err != nil {
		return nil, err
	}
	if result.Pros == nil {
		result.Pros = []string{}
	}
	if result.Cons == nil {
		result.Cons = []string{}
	}
	result.Pros = result.Pros[:min(3, len(result.Pros))]
	result.Cons = result.Cons[:min(3, len(result.Cons))]
	return &result, nil
}

func (s *AnalysisService) extractThemes(ctx context.Context, reviews []domain.StoredReview) ([]domain.Theme, error) {
	sample := reviews[:min(llmSampleSize, len(reviews))]
	texts := make([]string, 0, len(sample))
	for _, r := range sample {
		if text := strings.TrimSpace(truncate(r.Text, 150)); text != "" {
			texts = append(texts, text)
		}
	}

	prompt := fmt.Sprintf(`Analyze these product reviews and identify the 3 to 5 most common themes.

Reviews: %s

Return ONLY a JSON object:
{"themes": [{"theme": "Theme name", "frequency": "High/Medium/Low", "description": "Brief description"}]}`, truncate(strings.Join(texts, " "), 3000))

	text, err := s.llm.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var themes []domain.Theme
	if err := decodeLLMJSON(text, &themes); err != nil {
		var wrapped struct {
			Themes []domain.Theme `json:"themes"`
		}
		if werr := decodeLLMJSON(text, &wrapped); werr != nil {
			return nil, err
		}
		themes = wrapped.Themes
	}
	if themes == nil {
		themes = []domain.Theme{}
	}
	return themes[:min(maxThemes, len(themes))], nil
}

func (s *AnalysisService) summarize(ctx context.Context, reviews []domain.StoredReview, selected map[domain.Store]domain.Product) (string, error) {
	type storeStat struct{ count, sum int }
	stats := map[domain.Store]*storeStat{}
	total := 0
	for _, r := range reviews {
		st, ok := stats[r.Store]
		if !ok {
			st = &storeStat{}
			stats[r.Store] = st
		}
		st.count++
		st.sum += r.Rating
		total += r.Rating
	}

	var stores, storeRatings []string
	for _, store := range domain.Stores {
		if _, ok := selected[store]; ok {
			stores = append(stores, string(store))
		}
		if st, ok := stats[store]; ok {
			storeRatings = append(storeRatings, fmt.Sprintf("%s: %d reviews, %.2f/5", store, st.count, float64(st.sum)/float64(st.count)))
		}
	}

	prompt := fmt.Sprintf(`Generate a brief 2-sentence summary for this product comparison:

- Total reviews: %d
- Overall rating: %.1f/5
- Stores: %s
- Store ratings: %s

Focus on key insights and differences between stores.`,
		len(reviews), float64(total)/float64(len(reviews)), strings.Join(stores, ", "), strings.Join(storeRatings, "; "))

	text, err := s.llm.GenerateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty summary", domain.ErrUpstreamFailure)
	}
	return text, nil
}

type contextReview struct {
	ID         int          `json:"id"`
	Store      domain.Store `json:"store"`
	Rating     int          `json:"rating"`
	Text       string       `json:"text"`
	Title      string       `json:"title"`
	Similarity float64      `json:"similarity"`
}

type ragResponse struct {
	Answer     string   `json:"answer"`
	Sources    []any    `json:"sources"`
	Confidence *float64 `json:"confidence"`
}

// AnswerQuestion answers a free-text question from the comparison's most relevant reviews.
// It always returns an answer; failures lower the confidence instead of erroring.
func (s *AnalysisService) AnswerQuestion(ctx context.Context, question string, selected map[domain.Store]domain.Product) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	if len(selected) == 0 {
		return nil, domain.ErrNoSelection
	}

	comparisonID := domain.ComparisonID(selected)
	answer := &domain.Answer{
		ComparisonID: comparisonID,
		Question:     question,
		Sources:      []domain.Source{},
		Timestamp:    time.Now(),
	}

	reviews := s.cache.SearchReviewsByComparison(ctx, comparisonID, question, s.config.QuestionTopK)
	if len(reviews) == 0 {
		answer.Answer = notEnoughDataAnswer
		return answer, nil
	}

	contextReviews := make([]contextReview, 0, min(s.config.ContextReviews, len(reviews)))
	for i, r := range reviews[:min(s.config.ContextReviews, len(reviews))] {
		contextReviews = append(contextReviews, contextReview{
			ID:         i + 1,
			Store:      r.Store,
			Rating:     r.Rating,
			Text:       truncate(r.Text, 500),
			Title:      r.Title,
			Similarity: round(r.Similarity, 3),
		})
	}

	text, err := s.llm.GenerateJSON(ctx, buildRAGPrompt(question, contextReviews))
	if err != nil {
		logrus.WithError(err).WithField("comparison_id", comparisonID).Error("[ANALYSIS] question answering failed")
		answer.Answer = answerErrorAnswer
		return answer, nil
	}

	var resp ragResponse
	if err := decodeLLMJSON(text, &resp); err != nil {
		logrus.WithError(err).Warn("[ANALYSIS] answer was not valid JSON, returning raw text")
		answer.Answer = strings.TrimSpace(text)
		if answer.Answer == "" {
			answer.Answer = noProperAnswer
		}
		answer.Confidence = 0.3
		return answer, nil
	}

	answer.Answer = resp.Answer
	if answer.Answer == "" {
		answer.Answer = noProperAnswer
	}
	answer.Confidence = 0.5
	if resp.Confidence != nil {
		answer.Confidence = math.Max(0, math.Min(1, *resp.Confidence))
	}
	for _, raw := range resp.Sources {
		id := looseInt(raw)
		if id < 1 || id > len(contextReviews) {
			continue
		}
		cited := contextReviews[id-1]
		snippet := cited.Text
		if len(snippet) > 200 {
			snippet = truncate(snippet, 200) + "..."
		}
		answer.Sources = append(answer.Sources, domain.Source{
			Store:       cited.Store,
			Rating:      cited.Rating,
			TextSnippet: snippet,
			Similarity:  cited.Similarity,
		})
	}

	return answer, nil
}

func buildRAGPrompt(question string, reviews []contextReview) string {
	reviewsJSON, _ := json.MarshalIndent(reviews, "", "  ")
	return fmt.Sprintf(`Answer the user's question based on the provided product reviews. Use specific information from the reviews and cite your sources.

Question: %s

Relevant Reviews:
%s

Instructions:
1. Answer the question directly and comprehensively
2. Use specific information from the reviews
3. Mention which stores/reviews support your points
4. If comparing stores, be objective
5. If you can't answer confidently, say so

Return ONLY a valid JSON object in this exact format:
{"answer": "Your detailed answer here", "sources": [1, 2, 3], "confidence": 0.85}`, question, reviewsJSON)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(n)/float64(total)*100, 1)
}
