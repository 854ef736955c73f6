package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/validation"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compression selects how artifacts are written.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// maybeDecompress returns data unchanged unless it starts with a zstd frame.
func maybeDecompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	if c != CompressionZstd {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	out := enc.EncodeAll(data, nil)
	return out, enc.Close()
}

func decodeModel(data []byte, modelID string) (*models.Handle, error) {
	data, err := maybeDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelID, err)
	}
	if errs := validation.ValidateModelBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("model %s: schema: %s", modelID, strings.Join(errs, "; "))
	}
	var h models.Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("model %s: %w", modelID, err)
	}
	if err := checkHandle(&h, modelID); err != nil {
		return nil, err
	}
	return &h, nil
}

func encodeModel(h *models.Handle, c Compression) ([]byte, error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, err
	}
	return compress(data, c)
}

func decodeSplit(data []byte, meta Meta, modelID string) (*dataset.Split, error) {
	data, err := maybeDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", modelID, err)
	}
	s, err := dataset.ReadSplitCSV(bytes.NewReader(data), dataset.CSVOptions{LabelColumn: meta.LabelColumn})
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", modelID, err)
	}
	return s, nil
}

func encodeSplit(s *dataset.Split, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := dataset.WriteSplitCSV(&buf, s); err != nil {
		return nil, err
	}
	return compress(buf.Bytes(), c)
}

func decodeMeta(data []byte) (Meta, error) {
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("meta: %w", err)
	}
	return m, nil
}

// DecodeModel parses a standalone model artifact, plain or zstd-compressed,
// and validates it against the id it declares.
func DecodeModel(data []byte) (*models.Handle, error) {
	plain, err := maybeDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(plain, &head); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return decodeModel(plain, head.ID)
}
