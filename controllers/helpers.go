package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/middleware"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/kendall-kelly/atelier-api/utils"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.PureJSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondErrorCode(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.PureJSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// respondError maps service errors onto the response envelope
func respondError(c *gin.Context, err error) {
	var (
		notFound   *services.NotFoundError
		validation *services.ValidationError
		enumErr    *models.InvalidEnumError
		forbidden  *services.ForbiddenError
		invalid    *services.InvalidStateError
		conflict   *services.ConflictError
		declined   *services.PaymentDeclinedError
		transient  *services.TransientError
		upload     *utils.FileUploadError
	)

	switch {
	case errors.As(err, &notFound):
		respondErrorCode(c, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)
	case errors.As(err, &validation):
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", validation.Message, validation.Fields)
	case errors.As(err, &enumErr):
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", enumErr.Error(), gin.H{"allowed": enumErr.Allowed})
	case errors.As(err, &upload):
		respondErrorCode(c, http.StatusBadRequest, upload.Code, upload.Message, nil)
	case errors.As(err, &forbidden):
		respondErrorCode(c, http.StatusForbidden, "FORBIDDEN", forbidden.Message, nil)
	case errors.As(err, &invalid):
		respondErrorCode(c, http.StatusConflict, "INVALID_STATE", invalid.Error(), gin.H{"current_status": invalid.Current})
	case errors.As(err, &conflict):
		respondErrorCode(c, http.StatusConflict, "CONFLICT", conflict.Message, gin.H{"current_status": conflict.Current})
	case errors.As(err, &declined):
		respondErrorCode(c, http.StatusPaymentRequired, "PAYMENT_DECLINED", declined.Error(), gin.H{"reason": declined.Reason})
	case errors.As(err, &transient):
		respondErrorCode(c, http.StatusServiceUnavailable, "TRANSIENT_ERROR", "The operation could not complete, please retry", nil)
	default:
		log.Printf("[api] unhandled error path=%s err=%v", c.FullPath(), err)
		respondErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func respondBindError(c *gin.Context, err error) {
	respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
}

// currentActor returns the caller resolved by middleware.RequireUser, writing a 401 when missing
func currentActor(c *gin.Context) (services.Actor, bool) {
	actor, err := middleware.GetActor(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return services.Actor{}, false
	}
	return actor, true
}

// idParam parses a positive numeric path parameter, writing a 400 when it is malformed
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

// optionalIDQuery parses an optional numeric query parameter
func optionalIDQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid "+name, nil)
		return nil, false
	}
	v := uint(id)
	return &v, true
}
