package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"quote-service/internal/models"
	"quote-service/internal/service"
	"quote-service/internal/store"
	"quote-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// QuoteEngine is the reservation engine surface the transport consumes
type QuoteEngine interface {
	IssueQuote(ctx context.Context, req *service.IssueQuoteRequest) (*service.IssueQuoteResponse, error)
	RedeemQuote(ctx context.Context, quoteID string) (*models.Quote, *models.QuotePayload, error)
	Release(ctx context.Context, quoteID, reason string, guard store.ReleaseGuard) (*store.ReleaseResult, error)
	GetQuote(ctx context.Context, quoteID string) (*models.Quote, error)
	RecordProviderTransaction(ctx context.Context, quoteID, txID string) error
}

// Handler contains HTTP handlers
type Handler struct {
	engine   QuoteEngine
	provider service.PaymentProvider
	limiter  service.RateLimiter
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(engine QuoteEngine, provider service.PaymentProvider, limiter service.RateLimiter) *Handler {
	return &Handler{
		engine:   engine,
		provider: provider,
		limiter:  limiter,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/quotes", h.issueQuote)
		v1.GET("/quotes/:id", h.getQuote)
		v1.POST("/quotes/:id/redeem", h.redeemQuote)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// issueQuote reserves a cart behind a time-limited quote
func (h *Handler) issueQuote(c *gin.Context) {
	var req service.IssueQuoteRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   models.CodeItemsMissing,
			"details": err.Error(),
		})
		return
	}

	resp, err := h.engine.IssueQuote(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getQuote returns the audit-trail view of a quote
func (h *Handler) getQuote(c *gin.Context) {
	quote, err := h.engine.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if quote == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": models.CodeQuoteNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quote": quote,
		"state": quote.State(),
	})
}

// redeemQuote consumes a quote and creates the provider transaction.
// A provider failure releases the reservation so the quote is never
// left used with no payment attempt pending.
func (h *Handler) redeemQuote(c *gin.Context) {
	quoteID := c.Param("id")

	allowed, err := h.limiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
	} else if !allowed {
		util.RateLimitedTotal.Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests"})
		return
	}

	quote, payload, err := h.engine.RedeemQuote(c.Request.Context(), quoteID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	txID, err := h.provider.CreateTransaction(c.Request.Context(), quoteID, payload)
	if err != nil {
		h.logger.Error("Provider transaction failed, releasing quote",
			zap.String("quote_id", quoteID),
			zap.Error(err))
		if _, relErr := h.engine.Release(c.Request.Context(), quoteID, models.ReleaseReasonProviderError, store.GuardNone); relErr != nil {
			h.logger.Error("Failed to release quote after provider failure",
				zap.String("quote_id", quoteID),
				zap.Error(relErr))
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "provider_error",
			"details": err.Error(),
		})
		return
	}

	if err := h.engine.RecordProviderTransaction(c.Request.Context(), quoteID, txID); err != nil {
		h.logger.Error("Failed to record provider transaction",
			zap.String("quote_id", quoteID),
			zap.String("transaction_id", txID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"quote_id":       quoteID,
		"transaction_id": txID,
		"total":          quote.Total,
	})
}

// renderError maps the rejection taxonomy to HTTP statuses.
// Infrastructure failures stay opaque 500s.
func (h *Handler) renderError(c *gin.Context, err error) {
	rejection, ok := models.AsRejection(err)
	if !ok {
		h.logger.Error("Internal failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(rejectionStatus(rejection.Code), gin.H{"error": rejection})
}

func rejectionStatus(code string) int {
	switch code {
	case models.CodeItemsMissing:
		return http.StatusBadRequest
	case models.CodeProductNotFound, models.CodeQuoteNotFound:
		return http.StatusNotFound
	case models.CodeQuoteExpired:
		return http.StatusGone
	case models.CodeCannotShip:
		return http.StatusUnprocessableEntity
	case models.CodeQuotePayloadInvalid:
		return http.StatusInternalServerError
	default:
		// product_inactive, insufficient_stock, quote_already_used,
		// quote_unavailable: contention outcomes.
		return http.StatusConflict
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
