package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/services"
)

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
	DesignID   *uint  `json:"design_id"`
	QuoteID    *uint  `json:"quote_id"`
}

func messages() *services.MessageService {
	return services.NewMessageService(config.GetDB())
}

// SendMessage handles POST /api/v1/messages
func SendMessage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	message, err := messages().SendMessage(c.Request.Context(), actor, services.SendMessageInput{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		DesignID:   req.DesignID,
		QuoteID:    req.QuoteID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, message)
}

// GetConversation handles GET /api/v1/messages/conversation/:userId?designId= - oldest first
func GetConversation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	otherID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	designID, ok := optionalIDQuery(c, "designId")
	if !ok {
		return
	}

	conversation, err := messages().GetConversation(c.Request.Context(), actor, otherID, designID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, conversation)
}

// GetMyMessages handles GET /api/v1/messages/user
func GetMyMessages(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	list, err := messages().GetUserMessages(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

// MarkMessageAsRead handles PUT /api/v1/messages/:id/read
func MarkMessageAsRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	message, err := messages().MarkAsRead(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, message)
}

// GetUnreadCount handles GET /api/v1/messages/unread/count
func GetUnreadCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	count, err := messages().UnreadCount(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"count": count})
}
