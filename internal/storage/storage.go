package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/staylink/verification-service/internal/config"
	"github.com/staylink/verification-service/internal/domain"
)

// Upload is one artifact slot's file as received from the submitter.
type Upload struct {
	SubjectID   string
	GroupKind   domain.GroupKind
	Slot        string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ArtifactStore persists an upload and returns an opaque reference to it.
type ArtifactStore interface {
	Put(ctx context.Context, upload Upload) (string, error)
}

// Policy bounds what an upload may be.
type Policy struct {
	MaxBytes     int64
	AllowedTypes map[string]struct{}
}

// NewPolicy builds a Policy from upload configuration.
func NewPolicy(cfg config.UploadConfig) Policy {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, t := range cfg.AllowedMimeTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return Policy{MaxBytes: cfg.MaxBytes, AllowedTypes: allowed}
}

// Check returns domain.ErrUploadRejected for empty, oversized or unsupported uploads.
func (p Policy) Check(upload Upload) error {
	if upload.Size <= 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrUploadRejected, upload.Slot)
	}
	if p.MaxBytes > 0 && upload.Size > p.MaxBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrUploadRejected, upload.Slot, p.MaxBytes)
	}
	if len(p.AllowedTypes) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil {
		return fmt.Errorf("%w: %s has no valid content type", domain.ErrUploadRejected, upload.Slot)
	}
	if _, ok := p.AllowedTypes[strings.ToLower(mediaType)]; !ok {
		return fmt.Errorf("%w: %s type %s not allowed", domain.ErrUploadRejected, upload.Slot, mediaType)
	}
	return nil
}

// NewArtifactStore picks Cloudinary when configured, otherwise local disk.
func NewArtifactStore(cloud config.CloudinaryConfig, upload config.UploadConfig) (ArtifactStore, error) {
	if cloud.URL != "" {
		return NewCloudinaryStore(cloud.URL, upload.Folder)
	}
	return NewLocalStore(upload.LocalDir)
}

func publicID(upload Upload, unique string) string {
	return fmt.Sprintf("%s/%s/%s-%s", upload.SubjectID, upload.GroupKind, upload.Slot, unique)
}
