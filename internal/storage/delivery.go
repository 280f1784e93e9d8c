/**
 * @description
 * This package signs time-limited delivery URLs for generated assets stored
 * in R2 (S3-compatible object storage). Headshot previews, results, and hd
 * keys are stored as object keys; the API layer exchanges them for presigned
 * GET URLs just before responding.
 *
 * @dependencies
 * - github.com/aws/aws-sdk-go-v2: S3 client and presigner against the R2 endpoint.
 */
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the R2 connection settings.
type Config struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PresignTTL time.Duration
}

// DeliverySigner produces presigned GET URLs for stored objects.
type DeliverySigner struct {
	cfg       Config
	presigner *s3.PresignClient
}

// NewDeliverySigner builds an S3 client against the account's R2 endpoint.
func NewDeliverySigner(cfg Config) (*DeliverySigner, error) {
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("r2 account id is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("r2 credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("r2 bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	options := s3.Options{
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		BaseEndpoint: aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)),
	}
	client := s3.New(options)

	return &DeliverySigner{
		cfg:       cfg,
		presigner: s3.NewPresignClient(client),
	}, nil
}

// SignGet returns a presigned GET URL for one object key.
func (d *DeliverySigner) SignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	req, err := d.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = d.cfg.PresignTTL
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
