package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/metrics"
)

// R2Store uploads objects to Cloudflare R2 through its S3-compatible API.
type R2Store struct {
	bucket    string
	publicURL string
	client    *s3.Client
	log       zerolog.Logger
}

func NewR2Store(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*R2Store, error) {
	switch {
	case cfg.R2Endpoint == "" && cfg.R2AccountID == "":
		return nil, apperr.MissingConfig("R2_ACCOUNT_ID")
	case cfg.R2AccessKeyID == "":
		return nil, apperr.MissingConfig("R2_ACCESS_KEY_ID")
	case cfg.R2SecretAccessKey == "":
		return nil, apperr.MissingConfig("R2_SECRET_ACCESS_KEY")
	case cfg.R2BucketName == "":
		return nil, apperr.MissingConfig("R2_BUCKET_NAME")
	case cfg.R2PublicURL == "":
		return nil, apperr.MissingConfig("R2_PUBLIC_URL")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.R2Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.R2EndpointURL()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Store{
		bucket:    cfg.R2BucketName,
		publicURL: strings.TrimRight(cfg.R2PublicURL, "/"),
		client:    client,
		log:       log.With().Str("component", "r2-storage").Logger(),
	}, nil
}

func (s *R2Store) Backend() string { return config.StorageR2 }

func (s *R2Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	metrics.RecordStorage(s.Backend(), "put", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("r2 put %s: %w", key, err)
	}

	s.log.Info().Str("key", key).Int("size", len(body)).Str("content_type", contentType).Msg("object uploaded")
	return s.publicURL + "/" + escapeKey(key), nil
}

func (s *R2Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordStorage(s.Backend(), "delete", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("r2 delete %s: %w", key, err)
	}
	return nil
}

// Health checks that the bucket is reachable with the configured credentials.
func (s *R2Store) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("r2 bucket %s: %w", s.bucket, err)
	}
	return nil
}
