package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/utils"
)

// DesignFileKeyPrefix marks file references that are storage keys rather than external URLs
const DesignFileKeyPrefix = "designs/"

// StoredDesignFile describes an uploaded design file
type StoredDesignFile struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// DesignFileService stores design attachments (sketches, tech packs) and resolves their URLs
type DesignFileService interface {
	// Upload validates and stores a file, returning its storage key and a readable URL
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*StoredDesignFile, error)

	// ResolveURL turns a storage key into a URL; other references are returned unchanged
	ResolveURL(ctx context.Context, ref string) (string, error)

	// Delete removes a stored file; external URLs are ignored
	Delete(ctx context.Context, ref string) error
}

var designFileServiceInstance DesignFileService

// InitDesignFileService sets the global design file service
func InitDesignFileService(service DesignFileService) DesignFileService {
	designFileServiceInstance = service
	return designFileServiceInstance
}

// GetDesignFileService returns the global design file service
func GetDesignFileService() DesignFileService {
	return designFileServiceInstance
}

// SetDesignFileService replaces the global design file service (primarily for testing)
func SetDesignFileService(service DesignFileService) {
	designFileServiceInstance = service
}

// ObjectStoreDesignFiles keeps design files in an object store such as S3
type ObjectStoreDesignFiles struct {
	store ObjectStore
}

// NewObjectStoreDesignFiles creates a design file service over store
func NewObjectStoreDesignFiles(store ObjectStore) *ObjectStoreDesignFiles {
	return &ObjectStoreDesignFiles{store: store}
}

func (s *ObjectStoreDesignFiles) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*StoredDesignFile, error) {
	if err := utils.ValidateDesignFile(fileHeader); err != nil {
		return nil, err
	}

	content, err := readUpload(fileHeader)
	if err != nil {
		return nil, err
	}

	key := DesignFileKeyPrefix + utils.UniqueFileName(fileHeader.Filename)
	contentType := utils.ContentTypeFor(fileHeader.Filename)
	if err := s.store.PutObject(ctx, key, contentType, content); err != nil {
		return nil, fmt.Errorf("failed to upload design file: %w", err)
	}

	url, err := s.store.PresignGet(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate design file URL: %w", err)
	}
	log.Printf("[storage] design file stored key=%s size=%d", key, fileHeader.Size)

	return &StoredDesignFile{
		Key:         key,
		URL:         url,
		FileName:    filepath.Base(fileHeader.Filename),
		ContentType: contentType,
		Size:        fileHeader.Size,
	}, nil
}

func (s *ObjectStoreDesignFiles) ResolveURL(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, DesignFileKeyPrefix) {
		return ref, nil
	}
	url, err := s.store.PresignGet(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to generate design file URL: %w", err)
	}
	return url, nil
}

func (s *ObjectStoreDesignFiles) Delete(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, DesignFileKeyPrefix) {
		return nil
	}
	if err := s.store.DeleteObject(ctx, ref); err != nil {
		return fmt.Errorf("failed to delete design file: %w", err)
	}
	return nil
}

// LocalDesignFiles keeps design files on local disk, served from /api/v1/uploads
type LocalDesignFiles struct {
	dir string
}

// NewLocalDesignFiles creates a design file service writing under dir
func NewLocalDesignFiles(dir string) *LocalDesignFiles {
	return &LocalDesignFiles{dir: dir}
}

func (s *LocalDesignFiles) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*StoredDesignFile, error) {
	if err := utils.ValidateDesignFile(fileHeader); err != nil {
		return nil, err
	}

	filename, err := utils.SaveUploadedFile(fileHeader, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to save design file: %w", err)
	}
	log.Printf("[storage] design file saved locally name=%s size=%d", filename, fileHeader.Size)

	return &StoredDesignFile{
		Key:         DesignFileKeyPrefix + filename,
		URL:         utils.LocalFileURL(filename),
		FileName:    filepath.Base(fileHeader.Filename),
		ContentType: utils.ContentTypeFor(fileHeader.Filename),
		Size:        fileHeader.Size,
	}, nil
}

func (s *LocalDesignFiles) ResolveURL(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, DesignFileKeyPrefix) {
		return ref, nil
	}
	return utils.LocalFileURL(strings.TrimPrefix(ref, DesignFileKeyPrefix)), nil
}

func (s *LocalDesignFiles) Delete(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, DesignFileKeyPrefix) {
		return nil
	}
	name := filepath.Base(strings.TrimPrefix(ref, DesignFileKeyPrefix))
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete design file: %w", err)
	}
	return nil
}

// ResolveDesignFiles rewrites storage keys in the design's file list to readable URLs.
// A key that cannot be resolved is left as is.
func ResolveDesignFiles(ctx context.Context, files DesignFileService, design *models.Design) {
	if files == nil || design == nil {
		return
	}
	for i, ref := range design.FileURLs {
		url, err := files.ResolveURL(ctx, ref)
		if err != nil {
			log.Printf("[storage] could not resolve design file design_id=%d key=%s err=%v", design.ID, ref, err)
			continue
		}
		design.FileURLs[i] = url
	}
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("warning: failed to close file: %v", closeErr)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
