// Package media stores party photos in an S3 compatible bucket.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/util"
)

const (
	MaxObjectSize = 10 << 20

	defaultURLTTL = 15 * time.Minute
	region        = "us-east-1"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

type Store struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return NewWithClient(client, opts.Bucket, opts.URLTTL), nil
}

func NewWithClient(client *minio.Client, bucket string, urlTTL time.Duration) *Store {
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &Store{client: client, bucket: bucket, urlTTL: urlTTL}
}

// Put uploads a party photo owned by ownerID and returns its key and a
// presigned download URL.
func (s *Store) Put(ctx context.Context, ownerID, contentType string, body io.Reader, size int64) (Object, error) {
	key, err := objectKey(ownerID, contentType, size)
	if err != nil {
		return Object{}, err
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return Object{}, apperr.Wrap(apperr.DependencyUnavailable, "upload failed", err)
	}
	url, err := s.URL(ctx, key)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: url, ContentType: contentType, Size: size}, nil
}

// URL presigns a GET for key.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Get downloads an object and reports its content type.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	if !strings.HasPrefix(key, "parties/") {
		return nil, "", apperr.New(apperr.InvalidArgument, "unknown media key")
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", apperr.Wrap(apperr.DependencyUnavailable, "download failed", err)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, "", apperr.Newf(apperr.NotFound, "media %s not found", key)
		}
		return nil, "", apperr.Wrap(apperr.DependencyUnavailable, "download failed", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(object, MaxObjectSize+1)); err != nil {
		return nil, "", apperr.Wrap(apperr.DependencyUnavailable, "download failed", err)
	}
	return buf.Bytes(), info.ContentType, nil
}

func objectKey(ownerID, contentType string, size int64) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", apperr.New(apperr.Unauthenticated, "owner is required")
	}
	ext, ok := extensions[contentType]
	if !ok {
		return "", apperr.WithDetails(apperr.InvalidArgument, "unsupported content type", map[string]string{"contentType": contentType})
	}
	if size <= 0 || size > MaxObjectSize {
		return "", apperr.Newf(apperr.InvalidArgument, "photo must be between 1 byte and %d bytes", MaxObjectSize)
	}
	return "parties/" + ownerID + "/" + util.NewDocID() + ext, nil
}
