package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// Gallery objects are immutable once written, so the CDN may cache forever.
const cacheControlImmutable = "public, max-age=31536000, immutable"

// ObjectStorage is the gallery's durable blob store. Keys are built with the
// helpers in keys.go; PublicURL prefers the CDN domain when one is set.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	PublicURL(key string) string
	WarmCache(ctx context.Context, key string)
}

type objectStorage struct {
	log        *logger.Logger
	client     *s3.Client
	httpClient *http.Client
	bucket     string
	region     string
	cdnDomain  string
}

func NewObjectStorage(ctx context.Context, log *logger.Logger) (ObjectStorage, error) {
	serviceLog := log.With("client", "ObjectStorage")

	bucket := utils.GetEnv("GALLERY_S3_BUCKET", "", log)
	if bucket == "" {
		return nil, fmt.Errorf("missing env var GALLERY_S3_BUCKET")
	}
	region := utils.GetEnv("AWS_REGION", "us-east-1", log)
	cdnDomain := utils.GetEnv("GALLERY_CDN_DOMAIN", "", log)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &objectStorage{
		log:        serviceLog,
		client:     s3.NewFromConfig(cfg),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		bucket:     bucket,
		region:     region,
		cdnDomain:  cdnDomain,
	}, nil
}

func (s *objectStorage) Bucket() string { return s.bucket }

func (s *objectStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControlImmutable),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *objectStorage) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *objectStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *objectStorage) PublicURL(key string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// WarmCache issues a HEAD request against the public URL so the first real
// viewer hits a warm CDN edge. Failures are logged and ignored.
func (s *objectStorage) WarmCache(ctx context.Context, key string) {
	if s.cdnDomain == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.PublicURL(key), nil)
	if err != nil {
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("Cache warm request failed", "key", key, "error", err)
		return
	}
	_ = resp.Body.Close()
}
