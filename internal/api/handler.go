package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store         *store.Store
	cart          *service.CartService
	discount      *service.DiscountService
	reservation   *service.ReservationService
	checkoutSvc   *service.CheckoutService
	status        *service.StatusService
	webhookSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	store *store.Store,
	cart *service.CartService,
	discount *service.DiscountService,
	reservation *service.ReservationService,
	checkoutSvc *service.CheckoutService,
	status *service.StatusService,
	webhookSecret string,
) *Handler {
	return &Handler{
		store:         store,
		cart:          cart,
		discount:      discount,
		reservation:   reservation,
		checkoutSvc:   checkoutSvc,
		status:        status,
		webhookSecret: webhookSecret,
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
		v1.GET("/cart", h.getCart)
		v1.POST("/cart", h.addCartLine)
		v1.POST("/checkout/discount", h.applyDiscount)
		v1.POST("/checkout/reserve", h.reservePrice)
		v1.POST("/checkout/commit", h.commit)
		v1.POST("/webhooks/payment", h.paymentWebhook)
		v1.GET("/orders/:number", h.getOrder)
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

// ownerFromRequest resolves the cart owner from headers; the account id,
// when present, wins over the session.
func ownerFromRequest(c *gin.Context) (models.CartOwner, bool) {
	var owner models.CartOwner
	owner.SessionID = c.GetHeader("X-Session-ID")

	if raw := c.GetHeader("X-Account-ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return owner, false
		}
		owner.AccountID = &id
	}

	return owner, owner.SessionID != "" || owner.AccountID != nil
}

// renderError maps the error taxonomy onto HTTP statuses.
func renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch checkout.KindOf(err) {
	case checkout.KindValidation:
		status = http.StatusBadRequest
	case checkout.KindBusinessRule:
		status = http.StatusUnprocessableEntity
	case checkout.KindStale, checkout.KindInventoryConflict:
		status = http.StatusConflict
	case checkout.KindPaymentMismatch:
		status = http.StatusPaymentRequired
	}

	c.JSON(status, gin.H{
		"error":  err.Error(),
		"reason": checkout.ReasonOf(err),
		"kind":   checkout.KindOf(err).String(),
	})
}

// getCart returns the aggregated cart
func (h *Handler) getCart(c *gin.Context) {
	owner, ok := ownerFromRequest(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart owner"})
		return
	}

	cart, err := h.cart.Load(c.Request.Context(), owner)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lines":    cart.Lines,
		"subtotal": cart.Subtotal,
	})
}

type addCartLineRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// addCartLine adds a product to the cart or bumps an existing line
func (h *Handler) addCartLine(c *gin.Context) {
	owner, ok := ownerFromRequest(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart owner"})
		return
	}

	var req addCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
		return
	}

	if err := h.store.AddCartLine(c.Request.Context(), owner.Key(), req.ProductID, req.VariantID, req.Quantity); err != nil {
		renderError(c, err)
		return
	}

	cart, err := h.cart.Load(c.Request.Context(), owner)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lines":    cart.Lines,
		"subtotal": cart.Subtotal,
	})
}

type applyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

// applyDiscount validates and applies a discount code
func (h *Handler) applyDiscount(c *gin.Context) {
	owner, ok := ownerFromRequest(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart owner"})
		return
	}

	var req applyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.discount.Apply(c.Request.Context(), owner, req.Code)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type reserveRequest struct {
	Country          string `json:"country" binding:"required"`
	State            string `json:"state"`
	ShippingMethodID *int64 `json:"shipping_method_id"`
}

// reservePrice prices the cart and opens the payment reservation
func (h *Handler) reservePrice(c *gin.Context) {
	owner, ok := ownerFromRequest(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart owner"})
		return
	}

	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.reservation.ReservePrice(c.Request.Context(), &service.ReserveRequest{
		Owner:            owner,
		Country:          req.Country,
		State:            req.State,
		ShippingMethodID: req.ShippingMethodID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type commitRequest struct {
	ReservationID string         `json:"reservation_id"`
	Email         string         `json:"email" binding:"required"`
	Billing       models.Address `json:"billing" binding:"required"`
	Shipping      models.Address `json:"shipping" binding:"required"`
}

// commit runs the locked commit and returns the created order
func (h *Handler) commit(c *gin.Context) {
	owner, ok := ownerFromRequest(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart owner"})
		return
	}

	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.checkoutSvc.Commit(c.Request.Context(), &service.CommitRequest{
		Owner:         owner,
		ReservationID: req.ReservationID,
		Email:         req.Email,
		Billing:       req.Billing,
		Shipping:      req.Shipping,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// paymentWebhook verifies and applies an asynchronous gateway event
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable payload"})
		return
	}

	event, err := gateway.ParseWebhook(payload, c.GetHeader("X-Gateway-Signature"), h.webhookSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	if err := h.status.HandleGatewayEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// getOrder returns an order with its items and status history
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.store.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	items, err := h.store.GetOrderItemsByOrderID(c.Request.Context(), order.ID)
	if err != nil {
		renderError(c, err)
		return
	}

	history, err := h.store.GetStatusHistory(c.Request.Context(), order.ID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"items":   items,
		"history": history,
	})
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
