// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultRegion = "us-east-1"

type (
	// S3Config describes an S3-compatible endpoint.
	S3Config struct {
		Endpoint  string
		Region    string
		AccessKey string
		SecretKey string
		// Bucket is used when a URI names no bucket and by Publisher.
		Bucket string
		UseSSL bool
	}

	// S3 fetches and stores objects addressed as s3://bucket/key.
	S3 struct {
		client *minio.Client
		bucket string
		region string

		initOnce sync.Once
		initErr  error
	}
)

// NewS3 connects a client for cfg. No request is made until first use.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	opts := &minio.Options{Secure: cfg.UseSSL, Region: region}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access != "" || secret != "" {
		opts.Creds = credentials.NewStaticV4(access, secret, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{client: client, bucket: strings.TrimSpace(cfg.Bucket), region: region}, nil
}

// ParseS3URI splits s3://bucket/key. An empty bucket is returned for
// s3:///key so the configured default applies.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("parse %s: not an s3 URI", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("parse %s: missing object key", uri)
	}
	return u.Host, key, nil
}

func (s *S3) locate(uri string) (bucket, key string, err error) {
	bucket, key, err = ParseS3URI(uri)
	if err != nil {
		return "", "", err
	}
	if bucket == "" {
		bucket = s.bucket
	}
	if bucket == "" {
		return "", "", fmt.Errorf("parse %s: no bucket given and none configured", uri)
	}
	return bucket, key, nil
}

// Fetch implements engine.Fetcher. Missing objects report fs.ErrNotExist.
func (s *S3) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := s.locate(uri)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, fmt.Errorf("fetch %s: %w", uri, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	return data, nil
}

// Put stores data under key in the configured bucket, creating the
// bucket on first use.
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	key = strings.TrimLeft(key, "/")
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// URI names key in the configured bucket.
func (s *S3) URI(key string) string {
	return "s3://" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}
