// Package azurerm stores journal records as blobs in an Azure storage
// container.
package azurerm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/davidthor/platctl/pkg/journal/backend"
)

func init() {
	backend.Register("azurerm", NewBackend)
}

type Backend struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewBackend creates an Azure blob backend. Options: storage_account_name and
// container_name (required), prefix, endpoint, and one of access_key,
// sas_token or connection_string. Without any of those the default Azure
// credential chain is used, which picks up an `az login` session.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	account := cfg["storage_account_name"]
	if account == "" {
		return nil, fmt.Errorf("azurerm journal backend requires 'storage_account_name'")
	}
	container := cfg["container_name"]
	if container == "" {
		return nil, fmt.Errorf("azurerm journal backend requires 'container_name'")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	if endpoint := cfg["endpoint"]; endpoint != "" {
		serviceURL = endpoint
	}

	client, err := newClient(account, serviceURL, cfg)
	if err != nil {
		return nil, err
	}
	return &Backend{
		client:    client,
		container: container,
		prefix:    strings.Trim(cfg["prefix"], "/"),
	}, nil
}

func newClient(account, serviceURL string, cfg map[string]string) (*azblob.Client, error) {
	switch {
	case cfg["access_key"] != "":
		cred, err := azblob.NewSharedKeyCredential(account, cfg["access_key"])
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	case cfg["sas_token"] != "":
		sep := "?"
		if strings.Contains(serviceURL, "?") {
			sep = "&"
		}
		return azblob.NewClientWithNoCredential(serviceURL+sep+strings.TrimPrefix(cfg["sas_token"], "?"), nil)
	case cfg["connection_string"] != "":
		return azblob.NewClientFromConnectionString(cfg["connection_string"], nil)
	default:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default Azure credential: %w", err)
		}
		return azblob.NewClient(serviceURL, cred, nil)
	}
}

func (b *Backend) Type() string { return "azurerm" }

func (b *Backend) blob(key string) string { return backend.Join(b.prefix, key) }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, b.blob(key), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", b.container, b.blob(key), err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	contentType := "application/json"
	_, err := b.client.UploadBuffer(ctx, b.container, b.blob(key), data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", b.container, b.blob(key), err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteBlob(ctx, b.container, b.blob(key), nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s/%s: %w", b.container, b.blob(key), err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	full := b.blob(prefix)
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{Prefix: &full})

	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", b.container, full, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			keys = append(keys, b.relative(*item.Name))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(b.blob(key)).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s/%s: %w", b.container, b.blob(key), err)
	}
	return true, nil
}

func (b *Backend) relative(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

// isNotFound also matches bare 404s, which HEAD requests return without an
// error code.
func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
