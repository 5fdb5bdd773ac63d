package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// CloudinaryService uploads message attachments and yields the FileRef the
// chat layer embeds in file messages.
type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryService{cld: cld}, nil
}

// UploadAttachment uploads a multipart file and returns its descriptor.
func (s *CloudinaryService) UploadAttachment(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (*models.FileRef, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	result, err := s.cld.Upload.Upload(ctx, fileBytes, uploader.UploadParams{
		Folder:       folder,
		ResourceType: "auto", // image, video or raw detected automatically
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	return &models.FileRef{
		URL:      result.SecureURL,
		Name:     fileHeader.Filename,
		Type:     models.FileTypeFromMIME(mimeType),
		Size:     fileHeader.Size,
		MimeType: mimeType,
	}, nil
}
