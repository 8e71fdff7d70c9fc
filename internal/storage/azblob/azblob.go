package azblob

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/DMarby/image-resizer/internal/storage"
)

// Provider implements an Azure Blob Storage container based blob storage
type Provider struct {
	client    *azblob.Client
	container string
}

// New returns a new Provider instance for a container, creating the container if it doesn't exist.
// The connection string must come from configuration, such as the AzureWebJobsStorage app setting.
func New(ctx context.Context, connectionString, container string) (*Provider, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, err
	}

	_, err = client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, err
	}

	return &Provider{
		client:    client,
		container: container,
	}, nil
}

// Get returns the contents of a blob
func (p *Provider) Get(ctx context.Context, name string) ([]byte, error) {
	response, err := p.client.DownloadStream(ctx, p.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}
	defer response.Body.Close()

	return io.ReadAll(response.Body)
}

// Put uploads a blob, replacing any existing blob with the same name
func (p *Provider) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if name == "" {
		return storage.ErrInvalidName
	}

	_, err := p.client.UploadBuffer(ctx, p.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})

	return err
}
