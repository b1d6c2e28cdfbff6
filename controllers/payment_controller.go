package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
)

// CalculateFeeRequest asks for the fee breakdown of an amount
type CalculateFeeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ProcessPaymentRequest represents the request body for paying an order
type ProcessPaymentRequest struct {
	OrderID       uint            `json:"order_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	CardToken     string          `json:"card_token"`
}

// RefundRequest represents the request body for refunding a payment
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"max=500"`
}

func platformFeeRate() decimal.Decimal {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.PlatformFeeRate
	}
	return decimal.RequireFromString(config.DefaultPlatformFeeRate)
}

// CalculateFee handles POST /api/v1/payments/calculate-fee
func CalculateFee(c *gin.Context) {
	var req CalculateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	breakdown, err := services.CalculateFee(req.Amount, platformFeeRate())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, breakdown)
}

// ProcessPayment handles POST /api/v1/payments/process - the designer pays for an order
func ProcessPayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	payment, err := services.GetPaymentService().ProcessPayment(c.Request.Context(), actor, services.ProcessPaymentInput{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Method:    req.PaymentMethod,
		CardToken: req.CardToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, payment)
}

// ListMyPayments handles GET /api/v1/payments/user
func ListMyPayments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	payments, err := services.GetPaymentService().ListPaymentsForUser(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, payments)
}

// GetPayment handles GET /api/v1/payments/:id
func GetPayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	payment, err := services.GetPaymentService().GetPayment(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, payment)
}

// GetPaymentStatus handles GET /api/v1/payments/:id/status
func GetPaymentStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	view, err := services.GetPaymentService().GetPaymentStatus(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func RefundPayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	refund, err := services.GetPaymentService().RefundPayment(c.Request.Context(), actor, services.RefundInput{
		PaymentID: id,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, refund)
}

// ListPaymentTransactions handles GET /api/v1/payments/:id/transactions
func ListPaymentTransactions(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	txns, err := services.GetPaymentService().ListTransactions(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, txns)
}
