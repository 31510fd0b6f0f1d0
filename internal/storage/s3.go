package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	internalConfig "github.com/storyloop/backend/internal/config"
)

// S3Storage presigns uploads and downloads against an S3-compatible bucket
// (MinIO in development).
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

// NewS3Storage creates a new S3/MinIO storage provider
func NewS3Storage(ctx context.Context, cfg internalConfig.StorageConfig) (*S3Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO requires path-style addressing.
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  cfg.PresignExpiry,
	}, nil
}

// PresignUpload returns a presigned PUT URL and the media key the client
// must reference when creating its story.
func (s *S3Storage) PresignUpload(ctx context.Context, contentType string) (*UploadTarget, error) {
	ext, ok := AllowedContentTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	key := fmt.Sprintf("stories/%s%s", uuid.New(), ext)

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &UploadTarget{
		UploadURL: req.URL,
		MediaKey:  key,
		ExpiresIn: int(s.expiry.Seconds()),
	}, nil
}

// PresignDownload returns a temporary GET URL for an existing media key.
func (s *S3Storage) PresignDownload(ctx context.Context, mediaKey string) (string, error) {
	exists, err := s.Exists(ctx, mediaKey)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrMediaNotFound
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(mediaKey),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}

	return req.URL, nil
}

// Exists checks whether the media object is present in the bucket.
func (s *S3Storage) Exists(ctx context.Context, mediaKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(mediaKey),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ MediaStorage = (*S3Storage)(nil)
