package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/services"
)

// SendEmailRequest represents the request body for POST /email/send
type SendEmailRequest struct {
	To      string `json:"to" binding:"required,email"`
	Name    string `json:"name"`
	Subject string `json:"subject" binding:"required,max=300"`
	Body    string `json:"body" binding:"required"`
}

// SendEmail handles POST /api/v1/email/send - queues one notification email
func SendEmail(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}

	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	notifier := services.GetNotifier()
	if notifier == nil {
		respondErrorCode(c, http.StatusServiceUnavailable, "NOTIFICATIONS_UNAVAILABLE", "Notifications are not configured", nil)
		return
	}

	err := notifier.Send(c.Request.Context(), services.Notification{
		ToAddress: req.To,
		ToName:    req.Name,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			respondError(c, err)
			return
		}
		log.Printf("[notify] send failed to=%s err=%v", req.To, err)
		respondErrorCode(c, http.StatusBadGateway, "NOTIFICATION_FAILED", "Failed to send email", nil)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{"queued": true})
}
