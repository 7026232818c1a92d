package utils

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	appconfig "gigtasks/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PhotoStore keeps report photos uploaded over HTTP in an S3-compatible
// bucket (Cloudflare R2).
type PhotoStore struct {
	client *s3.Client
	bucket string
}

// NewPhotoStore returns nil, nil when storage is not configured.
func NewPhotoStore(ctx context.Context, cfg appconfig.Storage) (*PhotoStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"), // required by the SDK, ignored by R2
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load R2 config: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &PhotoStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores the object and returns its key, which is what reports keep as
// their photo reference.
func (p *PhotoStore) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("R2 upload failed: %w", err)
	}
	return key, nil
}

// SignedURL returns a presigned GET URL for a stored photo.
func (p *PhotoStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presigned, err := s3.NewPresignClient(p.client).PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		},
		func(po *s3.PresignOptions) {
			po.Expires = expiry
		},
	)
	if err != nil {
		return "", fmt.Errorf("presign R2 URL: %w", err)
	}
	return presigned.URL, nil
}

func (p *PhotoStore) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("R2 delete failed: %w", err)
	}
	return nil
}

// ReportPhotoPrefix prefixes the keys of report photos uploaded over HTTP.
const ReportPhotoPrefix = "reports/"
