package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/usecase"
)

// ProductUsecase is the product discovery and selection surface used by the handlers
type ProductUsecase interface {
	DiscoverProducts(ctx context.Context, query string, maxPerStore int) (domain.DiscoverySet, error)
	AddCustomProduct(ctx context.Context, url string) (*domain.Product, error)
	RefreshProduct(ctx context.Context, productID string) (*domain.Product, error)
	SelectProduct(ctx context.Context, store domain.Store, productID string) (*domain.Product, error)
	GetSelectedProducts() map[domain.Store]domain.Product
	GetSpecificationsForProducts(ctx context.Context, productIDs []string) (map[string]map[string]string, error)
	GetHistory() []domain.SearchHistory
}

// ReviewUsecase extracts reviews for selected products
type ReviewUsecase interface {
	ExtractReviews(ctx context.Context, selected map[domain.Store]domain.Product) (*domain.ReviewExtraction, error)
}

// AnalysisUsecase builds reports and answers questions for selected products
type AnalysisUsecase interface {
	AnalyzeReviews(ctx context.Context, selected map[domain.Store]domain.Product) (*domain.AnalysisReport, error)
	AnswerQuestion(ctx context.Context, question string, selected map[domain.Store]domain.Product) (*domain.Answer, error)
}

// CacheMaintainer removes expired cache entries on demand
type CacheMaintainer interface {
	CleanupExpiredCache(ctx context.Context) (int, error)
}

// TaskInspector reports background task state
type TaskInspector interface {
	Snapshot() usecase.TaskSnapshot
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	products ProductUsecase
	reviews  ReviewUsecase
	analysis AnalysisUsecase
	cache    CacheMaintainer
	tasks    TaskInspector
}

// NewHandler creates a new HTTP handler
func NewHandler(products ProductUsecase, reviews ReviewUsecase, analysis AnalysisUsecase, cache CacheMaintainer, tasks TaskInspector) *Handler {
	return &Handler{
		products: products,
		reviews:  reviews,
		analysis: analysis,
		cache:    cache,
		tasks:    tasks,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "opinionflow",
		"version": "1.0.0",
	})
}

// DiscoverProducts handles product discovery requests
func (h *Handler) DiscoverProducts(c *gin.Context) {
	var req discoverRequest
	if !bindAndValidate(c, &req) {
		return
	}

	set, err := h.products.DiscoverProducts(c.Request.Context(), req.Query, req.MaxPerStore)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":          req.Query,
		"products":       set,
		"total_products": set.Count(),
	})
}

// AddCustomProduct extracts and registers a product from a pasted URL
func (h *Handler) AddCustomProduct(c *gin.Context) {
	var req customProductRequest
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.products.AddCustomProduct(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// SelectProduct marks a product as the comparison pick for its store
func (h *Handler) SelectProduct(c *gin.Context) {
	store := domain.Store(c.Param("store"))
	if !knownStore(store) {
		respondError(c, &domain.StoreNotSupportedError{Store: string(store)})
		return
	}

	product, err := h.products.SelectProduct(c.Request.Context(), store, c.Param("product_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"selected": product,
		"store":    store,
	})
}

// GetSelectedProducts returns the current selection
func (h *Handler) GetSelectedProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"selected_products": h.products.GetSelectedProducts()})
}

// RefreshProduct re-extracts a registered product
func (h *Handler) RefreshProduct(c *gin.Context) {
	product, err := h.products.RefreshProduct(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetSpecifications returns enriched specifications for products
func (h *Handler) GetSpecifications(c *gin.Context) {
	var req specificationsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	specs, err := h.products.GetSpecificationsForProducts(c.Request.Context(), req.ProductIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"specifications": specs})
}

// GetHistory returns recent searches
func (h *Handler) GetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.products.GetHistory()})
}

// ExtractReviews collects reviews for the selected products
func (h *Handler) ExtractReviews(c *gin.Context) {
	var req selectionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	selected, err := h.resolveSelection(req.SelectedProducts)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.reviews.ExtractReviews(c.Request.Context(), selected)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AnalyzeReviews builds the comparison report
func (h *Handler) AnalyzeReviews(c *gin.Context) {
	var req selectionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	selected, err := h.resolveSelection(req.SelectedProducts)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analysis.AnalyzeReviews(c.Request.Context(), selected)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AskQuestion answers a question about the selected products
func (h *Handler) AskQuestion(c *gin.Context) {
	var req askRequest
	if !bindAndValidate(c, &req) {
		return
	}

	selected, err := h.resolveSelection(req.SelectedProducts)
	if err != nil {
		respondError(c, err)
		return
	}

	answer, err := h.analysis.AnswerQuestion(c.Request.Context(), req.Question, selected)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// CleanupCache deletes expired cache entries
func (h *Handler) CleanupCache(c *gin.Context) {
	removed, err := h.cache.CleanupExpiredCache(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ListTasks reports running and failed background tasks
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.tasks.Snapshot())
}

// resolveSelection falls back to the products chosen through SelectProduct
func (h *Handler) resolveSelection(requested map[domain.Store]domain.Product) (map[domain.Store]domain.Product, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	selected := h.products.GetSelectedProducts()
	if len(selected) == 0 {
		return nil, domain.ErrNoSelection
	}
	return selected, nil
}
