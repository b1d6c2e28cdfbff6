package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/middleware"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
)

// CreateUserRequest lets a new user pick their side of the marketplace
// when the token carries no role claim
type CreateUserRequest struct {
	Role string `json:"role" binding:"omitempty,oneof=designer supplier"`
}

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=200"`
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateUser handles POST /api/v1/users - creates the caller's profile from Auth0 userinfo
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token", nil)
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found", nil)
		return
	}

	var req CreateUserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	userInfo, err := services.NewAuth0Service(config.GetConfig()).GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		log.Printf("[users] userinfo failed sub=%s err=%v", auth0ID, err)
		respondErrorCode(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0", nil)
		return
	}
	if userInfo.Email == "" {
		respondErrorCode(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0", nil)
		return
	}
	if userInfo.Name == "" {
		respondErrorCode(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0", nil)
		return
	}

	// The token claim wins over the requested role
	role := models.RoleDesigner
	if claimed := middleware.GetRoleClaim(c); claimed != "" {
		role = claimed
	} else if req.Role != "" {
		role = req.Role
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Role:    role,
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if services.IsUniqueViolation(err) {
			respondErrorCode(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists", nil)
			return
		}
		respondErrorCode(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user", nil)
		return
	}

	log.Printf("[users] created id=%d role=%s", user.ID, user.Role)
	respondOK(c, http.StatusCreated, user)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if len(updates) == 0 {
		respondOK(c, http.StatusOK, user)
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	if err := db.Model(user).Updates(updates).Error; err != nil {
		if services.IsUniqueViolation(err) {
			respondErrorCode(c, http.StatusConflict, "EMAIL_EXISTS", "A user with this email already exists", nil)
			return
		}
		respondErrorCode(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user profile", nil)
		return
	}

	var updated models.User
	if err := db.First(&updated, user.ID).Error; err != nil {
		respondErrorCode(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated profile", nil)
		return
	}
	respondOK(c, http.StatusOK, updated)
}
