package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
)

// SubmitQuoteRequest represents the request body for a supplier's quote
type SubmitQuoteRequest struct {
	DesignID           uint            `json:"design_id" binding:"required"`
	Price              decimal.Decimal `json:"price"`
	Currency           string          `json:"currency"`
	DeliveryTimeInDays int             `json:"delivery_time_in_days" binding:"required,gt=0"`
	QuoteText          string          `json:"quote_text"`
	TermsAndConditions string          `json:"terms_and_conditions"`
}

// SubmitQuote handles POST /api/v1/quotes - suppliers quote on an open design
func SubmitQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	quote, err := lifecycle().SubmitQuote(c.Request.Context(), actor, req.DesignID, services.SubmitQuoteInput{
		Price:              req.Price,
		Currency:           req.Currency,
		DeliveryTimeInDays: req.DeliveryTimeInDays,
		QuoteText:          req.QuoteText,
		TermsAndConditions: req.TermsAndConditions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, quote)
}

// GetQuote handles GET /api/v1/quotes/:id
func GetQuote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	quote, err := lifecycle().GetQuote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, quote)
}

// ListQuotesForDesign handles GET /api/v1/quotes/design/:designId and GET /api/v1/designs/:id/quotes
func ListQuotesForDesign(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		designID, ok := idParam(c, param)
		if !ok {
			return
		}

		quotes, err := lifecycle().ListQuotesForDesign(c.Request.Context(), designID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, quotes)
	}
}

// ListQuotesForSupplier handles GET /api/v1/quotes/supplier/:supplierId
func ListQuotesForSupplier(c *gin.Context) {
	supplierID, ok := idParam(c, "supplierId")
	if !ok {
		return
	}

	quotes, err := lifecycle().ListQuotesForSupplier(c.Request.Context(), supplierID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, quotes)
}

// AcceptQuote handles POST /api/v1/quotes/:id/accept - the design owner accepts and an order is created
func AcceptQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := lifecycle().AcceptQuote(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

// RejectQuote handles POST /api/v1/quotes/:id/reject
func RejectQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	quote, err := lifecycle().RejectQuote(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, quote)
}

// UpdateQuoteStatus handles PATCH /api/v1/quotes/:id/status. Accepting returns the created order too.
func UpdateQuoteStatus(c *gin.Context) {
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

	quote, order, err := lifecycle().UpdateQuoteStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	if order != nil {
		respondOK(c, http.StatusOK, gin.H{"quote": quote, "order": order})
		return
	}
	respondOK(c, http.StatusOK, gin.H{"quote": quote})
}

// DeleteQuote handles DELETE /api/v1/quotes/:id - suppliers withdraw a submitted quote
func DeleteQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := lifecycle().DeleteQuote(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}
