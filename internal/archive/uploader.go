// Package archive ships accepted events to S3 as compressed JSONL batches
// and stores event attachments.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/issuehound/internal/config"
)

const (
	uploadTimeout  = 5 * time.Second
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Uploader wraps the S3 client with retry and backoff. SDK-level retries are
// disabled; the loop here owns the policy so a shutdown context cancels
// promptly between attempts.
type Uploader struct {
	client  *s3.Client
	bucket  string
	prefix  string
	retries int
}

// NewUploader builds an S3-backed uploader from archive config.
func NewUploader(ctx context.Context, cfg config.ArchiveConfig) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	retries := cfg.UploadRetries
	if retries < 1 {
		retries = 1
	}

	return &Uploader{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		retries: retries,
	}, nil
}

// UploadBytes puts a finished object under key, retrying with exponential
// backoff. Each attempt re-creates the reader so a partial write never
// corrupts the next try.
func (u *Uploader) UploadBytes(ctx context.Context, key, contentType string, body []byte) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := u.putObject(ctx, key, contentType, body); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("upload %s failed after %d attempts: %w", key, u.retries, lastErr)
}

func (u *Uploader) putObject(ctx context.Context, key, contentType string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := u.client.PutObject(attemptCtx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	return err
}

// PutAttachment stores one attachment and returns its storage key.
// Implements the ingest.BlobStore contract.
func (u *Uploader) PutAttachment(ctx context.Context, appID, eventID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/attachments/%s/%s/%s", u.prefix, appID, eventID, safeFilename(filename))
	if err := u.UploadBytes(ctx, key, contentType, data); err != nil {
		return "", err
	}
	return key, nil
}

// safeFilename keeps only the base name and replaces anything that could
// splice path segments into the key.
func safeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "attachment"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
