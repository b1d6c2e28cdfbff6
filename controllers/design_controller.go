package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
)

// CreateDesignRequest represents the request body for posting a design brief
type CreateDesignRequest struct {
	Title          string     `json:"title" binding:"required,max=200"`
	Description    string     `json:"description" binding:"required"`
	Category       string     `json:"category" binding:"required"`
	Quantity       int        `json:"quantity" binding:"required,gt=0"`
	Specifications string     `json:"specifications"`
	FileURLs       []string   `json:"file_urls"`
	Deadline       *time.Time `json:"deadline"`
	Draft          bool       `json:"draft"`
}

// UpdateStatusRequest is shared by every PATCH/PUT .../status route
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func lifecycle() *services.LifecycleService {
	return services.NewLifecycleService(config.GetDB())
}

func resolveFiles(ctx context.Context, designs ...*models.Design) {
	files := services.GetDesignFileService()
	for _, d := range designs {
		services.ResolveDesignFiles(ctx, files, d)
	}
}

// CreateDesign handles POST /api/v1/designs - designers post a new brief
func CreateDesign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	design, err := lifecycle().CreateDesign(c.Request.Context(), actor, services.CreateDesignInput{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Quantity:       req.Quantity,
		Specifications: req.Specifications,
		FileURLs:       req.FileURLs,
		Deadline:       req.Deadline,
		Draft:          req.Draft,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resolveFiles(c.Request.Context(), design)
	respondOK(c, http.StatusCreated, design)
}

// ListDesigns handles GET /api/v1/designs?category=&status=
func ListDesigns(c *gin.Context) {
	designs, err := lifecycle().ListDesigns(c.Request.Context(), services.DesignFilter{
		Category: c.Query("category"),
		Status:   c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	for i := range designs {
		resolveFiles(c.Request.Context(), &designs[i])
	}
	respondOK(c, http.StatusOK, designs)
}

// GetDesign handles GET /api/v1/designs/:id
func GetDesign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	design, err := lifecycle().GetDesign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resolveFiles(c.Request.Context(), design)
	respondOK(c, http.StatusOK, design)
}

// ListDesignsByDesigner handles GET /api/v1/designs/designer/:designerId
func ListDesignsByDesigner(c *gin.Context) {
	designerID, ok := idParam(c, "designerId")
	if !ok {
		return
	}

	designs, err := lifecycle().ListDesignsByDesigner(c.Request.Context(), designerID)
	if err != nil {
		respondError(c, err)
		return
	}

	for i := range designs {
		resolveFiles(c.Request.Context(), &designs[i])
	}
	respondOK(c, http.StatusOK, designs)
}

// UpdateDesignStatus handles PATCH /api/v1/designs/:id/status - owner moves the design through its lifecycle
func UpdateDesignStatus(c *gin.Context) {
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

	design, err := lifecycle().UpdateDesignStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	resolveFiles(c.Request.Context(), design)
	respondOK(c, http.StatusOK, design)
}

// DeleteDesign handles DELETE /api/v1/designs/:id
func DeleteDesign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := lifecycle().DeleteDesign(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}
