package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/models/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobs struct {
	blobs  map[string][]byte
	err    error
	opened []string
}

func (f *fakeBlobs) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f.opened = append(f.opened, name)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.blobs[name]
	if !ok {
		return nil, errBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newFakeBlobStore(t *testing.T, c Compression) (*BlobStore, *fakeBlobs) {
	t.Helper()
	modelData, err := encodeModel(modeltest.Forest(), c)
	require.NoError(t, err)
	splitData, err := encodeSplit(modeltest.Split(), c)
	require.NoError(t, err)

	ext := ""
	if c == CompressionZstd {
		ext = zstdExt
	}
	fake := &fakeBlobs{blobs: map[string][]byte{
		"prod/m1/model.json" + ext: modelData,
		"prod/m1/split.csv" + ext:  splitData,
	}}
	return &BlobStore{reader: fake, prefix: "prod"}, fake
}

func TestBlobStoreFetch(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			store, _ := newFakeBlobStore(t, c)

			h, split, err := Load(ctx, store, "m1")
			require.NoError(t, err)
			assert.InDelta(t, 0.8, h.Score(split.Row(0)), 1e-12)
		})
	}
}

func TestBlobStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeBlobStore(t, CompressionNone)

	_, err := store.FetchModel(ctx, "m9")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
	assert.Equal(t, []string{"prod/m9/model.json", "prod/m9/model.json.zst"}, fake.opened)

	_, err = store.FetchHeldOutSplit(ctx, "m9")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
}

func TestBlobStoreTransportError(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeBlobStore(t, CompressionNone)
	fake.err = errors.New("connection reset")

	_, err := store.FetchModel(ctx, "m1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrArtifactNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBlobStoreMeta(t *testing.T) {
	ctx := context.Background()
	fake := &fakeBlobs{blobs: map[string][]byte{
		"m1/split.csv": []byte("y,age,income,debt_ratio\n0,23,21000,0.6\n"),
		"m1/meta.yaml": []byte("label_column: y\n"),
	}}
	store := &BlobStore{reader: fake}

	split, err := store.FetchHeldOutSplit(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, modeltest.Features, split.Features)
}

func TestNewBlobStoreRequiresConfig(t *testing.T) {
	_, err := NewBlobStore(BlobConfig{})
	require.Error(t, err)
}
