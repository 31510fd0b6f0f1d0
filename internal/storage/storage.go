package storage

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrMediaNotFound   = errors.New("media not found")
)

// AllowedContentTypes maps accepted upload content types to the object-key
// extension used for them.
var AllowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

// UploadTarget is a presigned upload slot: the client PUTs the file to
// UploadURL and references MediaKey when creating the story.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	MediaKey  string `json:"media_key"`
	ExpiresIn int    `json:"expires_in"`
}

// MediaStorage hands out presigned URLs so media bytes never transit the
// API. The bucket itself is an external collaborator.
type MediaStorage interface {
	PresignUpload(ctx context.Context, contentType string) (*UploadTarget, error)
	PresignDownload(ctx context.Context, mediaKey string) (string, error)
	Exists(ctx context.Context, mediaKey string) (bool, error)
}
