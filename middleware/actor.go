package middleware

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"gorm.io/gorm"
)

const currentUserKey = "current_user"

// RequireUser resolves the token subject to a registered user and stores it in the context.
// Requests from subjects without a profile are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := GetUserID(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}

		var user models.User
		if err := config.GetDB().WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortWithError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
				return
			}
			log.Printf("[auth] user lookup failed sub=%s err=%v", auth0ID, err)
			abortWithError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user profile")
			return
		}

		c.Set(currentUserKey, &user)
		c.Next()
	}
}

// GetCurrentUser returns the user resolved by RequireUser
func GetCurrentUser(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}
	return user, nil
}

// GetActor returns the caller as a lifecycle actor
func GetActor(c *gin.Context) (services.Actor, error) {
	user, err := GetCurrentUser(c)
	if err != nil {
		return services.Actor{}, err
	}
	return services.ActorFromUser(user), nil
}

// RequireRole only lets users holding role through. It must run after RequireUser.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := GetCurrentUser(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}
		if user.Role != role {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Only "+role+"s can perform this action")
			return
		}
		c.Next()
	}
}
