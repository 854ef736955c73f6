package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// FileStore reads artifacts from a directory tree:
//
//	<root>/<model-id>/model.json[.zst]
//	<root>/<model-id>/split.csv[.zst]
//	<root>/<model-id>/meta.yaml   (optional)
type FileStore struct {
	root string
}

var (
	_ Store  = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// readArtifact reads name or name.zst from the model directory.
func (s *FileStore) readArtifact(modelID, name string) ([]byte, error) {
	base := filepath.Join(s.root, modelID, name)
	for _, p := range []string{base, base + zstdExt} {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
	}
	return nil, fs.ErrNotExist
}

// FetchModel loads and validates the model artifact for modelID.
func (s *FileStore) FetchModel(ctx context.Context, modelID string) (*models.Handle, error) {
	if err := checkID(modelID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.readArtifact(modelID, ModelFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("model", modelID)
	}
	if err != nil {
		return nil, err
	}
	return decodeModel(data, modelID)
}

// FetchHeldOutSplit loads the held-out split for modelID in file order.
func (s *FileStore) FetchHeldOutSplit(ctx context.Context, modelID string) (*dataset.Split, error) {
	if err := checkID(modelID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.readArtifact(modelID, SplitFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("held-out split", modelID)
	}
	if err != nil {
		return nil, err
	}

	var meta Meta
	metaData, err := os.ReadFile(filepath.Join(s.root, modelID, MetaFile))
	switch {
	case err == nil:
		if meta, err = decodeMeta(metaData); err != nil {
			return nil, fmt.Errorf("model %s: %w", modelID, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	return decodeSplit(data, meta, modelID)
}

// ListModels returns the ids of every directory that holds a model artifact.
func (s *FileStore) ListModels(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing models: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := s.readArtifact(e.Name(), ModelFile); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Save writes a model and its split, replacing any existing artifacts.
func (s *FileStore) Save(ctx context.Context, h *models.Handle, split *dataset.Split, c Compression) error {
	if err := checkID(h.ID); err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return err
	}
	if err := checkSplit(h, split); err != nil {
		return err
	}
	dir := filepath.Join(s.root, h.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	ext := ""
	if c == CompressionZstd {
		ext = zstdExt
	}
	modelData, err := encodeModel(h, c)
	if err != nil {
		return err
	}
	splitData, err := encodeSplit(split, c)
	if err != nil {
		return err
	}
	for name, data := range map[string][]byte{ModelFile: modelData, SplitFile: splitData} {
		for _, stale := range []string{name, name + zstdExt} {
			_ = os.Remove(filepath.Join(dir, stale))
		}
		if err := os.WriteFile(filepath.Join(dir, name+ext), data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return ctx.Err()
}
