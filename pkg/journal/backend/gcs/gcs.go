// Package gcs stores journal records in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/davidthor/platctl/pkg/journal/backend"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

func init() {
	backend.Register("gcs", NewBackend)
}

type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewBackend creates a GCS backend. Options: bucket (required), prefix,
// credentials (a key file), credentials_json and endpoint. An endpoint
// disables authentication so emulators work.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("gcs journal backend requires 'bucket'")
	}

	var opts []option.ClientOption
	if file := cfg["credentials"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if raw := cfg["credentials_json"]; raw != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(raw)))
	}
	if endpoint := cfg["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg["prefix"], "/"),
	}, nil
}

func (b *Backend) Type() string { return "gcs" }

func (b *Backend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(backend.Join(b.prefix, key))
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.bucket, key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: backend.Join(b.prefix, prefix)})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", b.bucket, prefix, err)
		}
		keys = append(keys, b.relative(attrs.Name))
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check gs://%s/%s: %w", b.bucket, key, err)
	}
	return true, nil
}

func (b *Backend) relative(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

// Close releases the storage client.
func (b *Backend) Close() error {
	return b.client.Close()
}
