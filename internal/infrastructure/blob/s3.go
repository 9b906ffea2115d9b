package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/example/retail-orders/internal/apperr"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes blobs to a single bucket.
type S3Store struct {
	client  S3API
	bucket  string
	baseURL string
}

// NewS3Store creates a store. baseURL, when set, replaces the default
// virtual-hosted bucket URL in returned URIs (useful behind a CDN or with
// a local S3 emulator).
func NewS3Store(client S3API, bucket, baseURL string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", apperr.Transient(fmt.Errorf("put object %s: %w", name, err))
	}
	return s.URI(name), nil
}

// URI returns the public location of the named object.
func (s *S3Store) URI(name string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + name
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, name)
}
