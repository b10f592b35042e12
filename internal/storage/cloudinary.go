package storage

import (
	"context"
	"fmt"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// CloudinaryStore uploads artifacts to Cloudinary and returns the secure URL.
type CloudinaryStore struct {
	cld    *cld.Cloudinary
	folder string
}

// NewCloudinaryStore builds a store from a CLOUDINARY_URL.
func NewCloudinaryStore(url, folder string) (*CloudinaryStore, error) {
	client, err := cld.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: client, folder: folder}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, upload Upload) (string, error) {
	res, err := s.cld.Upload.Upload(ctx, upload.Body, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID(upload, uuid.NewString()),
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}
