package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest represents the request body for placing an order on a quote.
// Every field is checked against the stored quote.
type CreateOrderRequest struct {
	DesignID   uint            `json:"design_id" binding:"required"`
	DesignerID uint            `json:"designer_id"`
	SupplierID uint            `json:"supplier_id" binding:"required"`
	QuoteID    uint            `json:"quote_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

func orders() *services.OrderService {
	return services.NewOrderService(config.GetDB())
}

// CreateOrder handles POST /api/v1/orders - accepts the quote if needed and returns its order
func CreateOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.DesignerID == 0 {
		req.DesignerID = actor.UserID
	}

	order, created, err := lifecycle().CreateOrder(c.Request.Context(), actor, services.CreateOrderInput{
		DesignID:   req.DesignID,
		DesignerID: req.DesignerID,
		SupplierID: req.SupplierID,
		QuoteID:    req.QuoteID,
		Amount:     req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondOK(c, status, order)
}

// ListMyOrders handles GET /api/v1/orders/user - orders where the caller is designer or supplier
func ListMyOrders(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	list, err := orders().ListOrdersForUser(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := orders().GetOrder(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// UpdateOrderStatus handles PUT /api/v1/orders/:id/status - production steps and cancellation
func UpdateOrderStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := orders().UpdateOrderStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// UpdateOrderPaymentStatus handles PUT /api/v1/orders/:id/payment-status - replays the
// order payment status step; safe to retry
func UpdateOrderPaymentStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := services.GetPaymentService().SyncOrderPaymentStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}
