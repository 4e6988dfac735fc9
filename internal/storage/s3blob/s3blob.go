// Package s3blob is the edge runtime's storage.BlobStore backed by an
// S3-compatible object store (AWS S3, R2, MinIO).
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures the S3 connection.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every key, e.g. "pathnote/".
	Prefix string
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// Store implements storage.BlobStore on an S3 bucket.
type Store struct {
	api    API
	bucket string
	prefix string
}

var _ storage.BlobStore = (*Store)(nil)

// Open builds an S3 client from o. Static credentials are used when
// AccessKey is set; otherwise the default AWS credential chain applies.
func Open(ctx context.Context, o Options) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load config: %w", err)
	}
	client := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return New(client, o.Bucket, o.Prefix), nil
}

// New wraps an existing client.
func New(api API, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %q: %w", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3blob: get %q: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the object at key. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return fmt.Errorf("s3blob: delete %q: %w", key, err)
	}
	return nil
}

// List pages through every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]models.BlobInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	})
	out := []models.BlobInfo{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list: %w", err)
		}
		for _, obj := range page.Contents {
			key, ok := strings.CutPrefix(aws.ToString(obj.Key), s.prefix)
			if !ok {
				continue
			}
			out = append(out, models.BlobInfo{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
