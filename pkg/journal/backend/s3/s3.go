// Package s3 stores journal records in an S3-compatible bucket.
package s3

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
	"github.com/davidthor/platctl/pkg/journal/backend"
)

func init() {
	backend.Register("s3", NewBackend)
}

const defaultRegion = "us-east-1"

type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	region string
}

// NewBackend creates an S3 backend. Options: bucket (required), region,
// prefix, endpoint, force_path_style, access_key and secret_key. Without
// static keys the default AWS credential chain applies.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 journal backend requires 'bucket'")
	}
	region := cfg["region"]
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey := cfg["access_key"]; accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, cfg["secret_key"], ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg["force_path_style"] == "true"
		if endpoint := cfg["endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg["prefix"], "/"),
		region: region,
	}, nil
}

func (b *Backend) Type() string { return "s3" }

func (b *Backend) key(k string) string { return backend.Join(b.prefix, k) }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	full := b.key(key)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &full})
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, full, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, full, err)
	}
	return data, nil
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	full := b.key(key)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &full,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write s3://%s/%s: %w", b.bucket, full, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	full := b.key(key)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &full})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", b.bucket, full, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	full := b.key(prefix)
	var keys []string

	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &full,
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", b.bucket, full, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, b.relative(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	full := b.key(key)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &full})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check s3://%s/%s: %w", b.bucket, full, err)
	}
	return true, nil
}

func (b *Backend) relative(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, b.prefix+"/")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
