// Package artifact fetches trained models and their held-out splits.
package artifact

//go:generate go tool mockgen -source=store.go -destination=mock_store.go -package=artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// Store resolves model identifiers to immutable artifacts. Implementations
// return errors matching models.ErrArtifactNotFound for unknown identifiers
// and must return split rows in the same order on every call.
type Store interface {
	FetchModel(ctx context.Context, modelID string) (*models.Handle, error)
	FetchHeldOutSplit(ctx context.Context, modelID string) (*dataset.Split, error)
}

// Lister is implemented by stores that can enumerate their models.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Artifact file names inside a model directory or blob prefix.
const (
	ModelFile = "model.json"
	SplitFile = "split.csv"
	MetaFile  = "meta.yaml"
	zstdExt   = ".zst"
)

// Meta is optional per-model metadata stored next to the split.
type Meta struct {
	LabelColumn string `yaml:"label_column"`
	Description string `yaml:"description,omitempty"`
}

func checkID(modelID string) error {
	if modelID == "" || modelID == "." || modelID == ".." || strings.ContainsAny(modelID, `/\`) {
		return fmt.Errorf("%w: invalid model id %q", models.ErrArtifactNotFound, modelID)
	}
	return nil
}

func notFound(kind, modelID string) error {
	return fmt.Errorf("%w: %s for model %s", models.ErrArtifactNotFound, kind, modelID)
}

// checkHandle makes sure a decoded handle is usable under the given id.
func checkHandle(h *models.Handle, modelID string) error {
	if h.ID == "" {
		h.ID = modelID
	}
	if h.ID != modelID {
		return fmt.Errorf("artifact for %s declares id %q", modelID, h.ID)
	}
	return h.Validate()
}

// checkSplit makes sure split columns line up with the model's features.
func checkSplit(h *models.Handle, s *dataset.Split) error {
	if len(s.Features) != len(h.FeatureNames) {
		return fmt.Errorf("split for %s has %d features, model expects %d", h.ID, len(s.Features), len(h.FeatureNames))
	}
	for i, f := range h.FeatureNames {
		if s.Features[i] != f {
			return fmt.Errorf("split for %s: column %d is %q, model expects %q", h.ID, i, s.Features[i], f)
		}
	}
	return nil
}

// Load fetches both artifacts for modelID and checks they agree.
func Load(ctx context.Context, s Store, modelID string) (*models.Handle, *dataset.Split, error) {
	h, err := s.FetchModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	split, err := s.FetchHeldOutSplit(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkSplit(h, split); err != nil {
		return nil, nil, err
	}
	return h, split, nil
}
