package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// errBlobNotFound is returned by blobReader implementations for missing blobs.
var errBlobNotFound = errors.New("blob not found")

// blobReader opens a named blob inside one container.
type blobReader interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// containerReader adapts an azblob client to blobReader.
type containerReader struct {
	client    *azblob.Client
	container string
}

func (c *containerReader) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, c.container, name, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, errBlobNotFound
		}
		return nil, err
	}
	return resp.Body, nil
}

// BlobConfig configures a BlobStore.
type BlobConfig struct {
	// AccountURL is the blob service endpoint, e.g. https://acct.blob.core.windows.net/
	AccountURL string
	Container  string
	// Prefix is prepended to every model directory.
	Prefix string
}

// BlobStore reads artifacts from Azure Blob Storage using the same layout as
// FileStore, with blob names <prefix>/<model-id>/<file>.
type BlobStore struct {
	reader blobReader
	prefix string
}

var _ Store = (*BlobStore)(nil)

// NewBlobStore connects with DefaultAzureCredential.
func NewBlobStore(cfg BlobConfig) (*BlobStore, error) {
	if cfg.AccountURL == "" || cfg.Container == "" {
		return nil, fmt.Errorf("azblob: account_url and container are required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azblob: credential: %w", err)
	}
	return NewBlobStoreWithCredential(cfg, cred)
}

// NewBlobStoreWithCredential connects with an explicit token credential.
func NewBlobStoreWithCredential(cfg BlobConfig, cred azcore.TokenCredential) (*BlobStore, error) {
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob: client: %w", err)
	}
	return &BlobStore{
		reader: &containerReader{client: client, container: cfg.Container},
		prefix: cfg.Prefix,
	}, nil
}

func (s *BlobStore) blobName(modelID, file string) string {
	return path.Join(s.prefix, modelID, file)
}

// read returns the first existing blob among file and file.zst.
func (s *BlobStore) read(ctx context.Context, modelID, file string) ([]byte, error) {
	for _, name := range []string{file, file + zstdExt} {
		rc, err := s.reader.Open(ctx, s.blobName(modelID, name))
		if errors.Is(err, errBlobNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("azblob: %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("azblob: reading %s: %w", name, err)
		}
		return data, nil
	}
	return nil, errBlobNotFound
}

func (s *BlobStore) FetchModel(ctx context.Context, modelID string) (*models.Handle, error) {
	if err := checkID(modelID); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, modelID, ModelFile)
	if errors.Is(err, errBlobNotFound) {
		return nil, notFound("model", modelID)
	}
	if err != nil {
		return nil, err
	}
	return decodeModel(data, modelID)
}

func (s *BlobStore) FetchHeldOutSplit(ctx context.Context, modelID string) (*dataset.Split, error) {
	if err := checkID(modelID); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, modelID, SplitFile)
	if errors.Is(err, errBlobNotFound) {
		return nil, notFound("held-out split", modelID)
	}
	if err != nil {
		return nil, err
	}

	var meta Meta
	rc, err := s.reader.Open(ctx, s.blobName(modelID, MetaFile))
	switch {
	case err == nil:
		metaData, readErr := io.ReadAll(rc)
		_ = rc.Close()
		if readErr != nil {
			return nil, fmt.Errorf("azblob: reading %s: %w", MetaFile, readErr)
		}
		if meta, err = decodeMeta(metaData); err != nil {
			return nil, fmt.Errorf("model %s: %w", modelID, err)
		}
	case !errors.Is(err, errBlobNotFound):
		return nil, fmt.Errorf("azblob: %s: %w", MetaFile, err)
	}
	return decodeSplit(data, meta, modelID)
}
