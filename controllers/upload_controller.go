package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/kendall-kelly/atelier-api/utils"
)

// UploadDesignFile handles POST /api/v1/designs/files - stores a sketch or tech pack
// and returns its storage key for the design's file_urls
func UploadDesignFile(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "MISSING_FILE", "A file is required in the 'file' form field", nil)
		return
	}

	files := services.GetDesignFileService()
	if files == nil {
		respondErrorCode(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
		return
	}

	stored, err := files.Upload(c.Request.Context(), fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, stored)
}

// GetUploadedFile handles GET /api/v1/uploads/:filename - serves design files stored on local disk
func GetUploadedFile(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "Filename is required", nil)
		return
	}

	// Prevent directory traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename", nil)
		return
	}

	contentType := utils.ContentTypeFor(filename)
	if contentType == "application/octet-stream" {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"Only "+strings.Join(utils.AllowedDesignFileFormats(), ", ")+" files are supported", nil)
		return
	}

	filePath := filepath.Join(utils.UploadDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		respondErrorCode(c, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(filePath)
}
