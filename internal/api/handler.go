package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mealrescue/internal/models"
	"mealrescue/internal/service"
	"mealrescue/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	intake      *service.IntakeService
	lifecycle   *service.OrderLifecycleService
	settlements *service.SettlementService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	intake *service.IntakeService,
	lifecycle *service.OrderLifecycleService,
	settlements *service.SettlementService,
) *Handler {
	return &Handler{
		intake:      intake,
		lifecycle:   lifecycle,
		settlements: settlements,
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
		v1.GET("/offers", h.listOffers)
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.changeOrderStatus)
		v1.POST("/restaurants/:id/deliveries", h.markDelivered)
		v1.POST("/settlements/generate", h.generateSettlements)
		v1.GET("/settlements", h.listSettlements)
		v1.GET("/settlements/:id", h.getSettlement)
		v1.PATCH("/settlements/:id/status", h.changeSettlementStatus)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listOffers returns the currently purchasable offers
func (h *Handler) listOffers(c *gin.Context) {
	offers, err := h.intake.ListOffers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "BAD_REQUEST",
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.intake.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder returns an order with its status audit trail
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, changes, err := h.lifecycle.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"history": changes,
	})
}

type changeOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// changeOrderStatus handles order status transitions
func (h *Handler) changeOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req changeOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "BAD_REQUEST",
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.lifecycle.ChangeStatus(c.Request.Context(), orderID, req.Status, req.Reason, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type markDeliveredRequest struct {
	Code string `json:"code" binding:"required"`
}

// markDelivered confirms delivery of a pickup code within one
// restaurant's scope
func (h *Handler) markDelivered(c *gin.Context) {
	restaurantID, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Staff identity arrives pre-verified; a scope mismatch reads the
	// same as an unknown code.
	if scope := restaurantScope(c); scope != 0 && scope != restaurantID {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "Order not found"})
		return
	}

	var req markDeliveredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "BAD_REQUEST",
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.lifecycle.MarkDeliveredByCode(c.Request.Context(), restaurantID, req.Code, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type generateSettlementsRequest struct {
	PeriodStart time.Time `json:"period_start" binding:"required"`
	PeriodEnd   time.Time `json:"period_end" binding:"required"`
}

// generateSettlements runs the settlement batcher for a period
func (h *Handler) generateSettlements(c *gin.Context) {
	var req generateSettlementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "BAD_REQUEST",
			"error": "period_start and period_end are required ISO instants",
		})
		return
	}

	result, err := h.settlements.Generate(c.Request.Context(), req.PeriodStart, req.PeriodEnd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// listSettlements lists settlements, restricted to the caller's
// restaurant scope when one is supplied
func (h *Handler) listSettlements(c *gin.Context) {
	restaurantID := restaurantScope(c)
	if restaurantID == 0 {
		if q := c.Query("restaurant_id"); q != "" {
			id, err := strconv.ParseInt(q, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": "Invalid restaurant_id"})
				return
			}
			restaurantID = id
		}
	}

	settlements, err := h.settlements.List(c.Request.Context(), restaurantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settlements": settlements})
}

// getSettlement returns a settlement with its included orders
func (h *Handler) getSettlement(c *gin.Context) {
	settlementID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.settlements.Get(c.Request.Context(), settlementID, restaurantScope(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

type changeSettlementStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// changeSettlementStatus handles settlement status transitions
func (h *Handler) changeSettlementStatus(c *gin.Context) {
	settlementID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req changeSettlementStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "BAD_REQUEST",
			"error": "Invalid request body",
		})
		return
	}

	settlement, err := h.settlements.ChangeStatus(c.Request.Context(), settlementID, req.Status, req.Notes, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlement)
}

// respondError maps domain errors to HTTP responses. OUT_OF_STOCK and
// OFFER_UNAVAILABLE are distinct conflict codes so clients can decide
// whether to retry against a different offer.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": err.Error()})
	case errors.Is(err, models.ErrOfferUnavailable):
		c.JSON(http.StatusConflict, gin.H{"code": "OFFER_UNAVAILABLE", "error": err.Error()})
	case errors.Is(err, models.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"code": "OUT_OF_STOCK", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "Internal server error"})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated caller id supplied by the upstream
// identity layer; nil when absent.
func actorID(c *gin.Context) *int64 {
	v := c.GetHeader("X-User-ID")
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// restaurantScope reads the staff caller's restaurant scope; 0 means
// unscoped (admin or internal caller).
func restaurantScope(c *gin.Context) int64 {
	v := c.GetHeader("X-Restaurant-ID")
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
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
