package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReadSplitCSV(t *testing.T) {
	tests := []struct {
		name         string
		csv          string
		opts         CSVOptions
		wantFeatures []string
		wantRows     int
		wantLabels   []int
		wantErr      string
	}{
		{
			name:         "label is last column by default",
			csv:          "age,income,default\n45,85000,1\n23,21000,0\n",
			wantFeatures: []string{"age", "income"},
			wantRows:     2,
			wantLabels:   []int{1, 0},
		},
		{
			name:         "label column found by name",
			csv:          "target,age,income\n1,45,85000\n0,23,21000\n",
			wantFeatures: []string{"age", "income"},
			wantRows:     2,
			wantLabels:   []int{1, 0},
		},
		{
			name:         "explicit label column",
			csv:          "age,y,income\n45,true,85000\n",
			opts:         CSVOptions{LabelColumn: "y"},
			wantFeatures: []string{"age", "income"},
			wantRows:     1,
			wantLabels:   []int{1},
		},
		{
			name:         "unlabeled",
			csv:          "age,income\n45,85000\n",
			opts:         CSVOptions{Unlabeled: true},
			wantFeatures: []string{"age", "income"},
			wantRows:     1,
		},
		{
			name:         "headers only",
			csv:          "age,income,label\n",
			wantFeatures: []string{"age", "income"},
			wantRows:     0,
			wantLabels:   []int{},
		},
		{
			name:    "missing explicit label column",
			csv:     "age,income\n45,85000\n",
			opts:    CSVOptions{LabelColumn: "y"},
			wantErr: `label column "y" not found`,
		},
		{
			name:    "non numeric feature",
			csv:     "age,label\nold,1\n",
			wantErr: `column "age"`,
		},
		{
			name:    "fractional label",
			csv:     "age,label\n45,0.5\n",
			wantErr: "invalid label",
		},
		{
			name:    "mismatched column count",
			csv:     "age,label\n45,1\n46\n",
			wantErr: "wrong number of fields",
		},
		{
			name:    "empty input",
			csv:     "",
			wantErr: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ReadSplitCSV(strings.NewReader(tt.csv), tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFeatures, s.Features)
			assert.Equal(t, tt.wantRows, s.Len())
			if tt.wantLabels == nil {
				assert.False(t, s.Labeled())
			} else {
				assert.Equal(t, tt.wantLabels, s.Labels())
			}
		})
	}
}

func TestLoadSplitCSV(t *testing.T) {
	dir := t.TempDir()
	p := writeCSV(t, dir, "test.csv", "age,income,debt_ratio,label\n45,85000,0.2,1\n23,21000,0.6,0\n")

	s, err := LoadSplitCSV(p, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 85000, 0.2}, s.Row(0))
	l, ok := s.Label(1)
	assert.True(t, ok)
	assert.Equal(t, 0, l)

	_, err = LoadSplitCSV(filepath.Join(dir, "missing.csv"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestWriteSplitCSVRoundTrip(t *testing.T) {
	s, err := NewSplit([]string{"a", "b"}, [][]float64{{1.5, 2}, {3, 4.25}}, []int{0, 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSplitCSV(&buf, s))
	assert.Equal(t, "a,b,label\n1.5,2,0\n3,4.25,1\n", buf.String())

	back, err := ReadSplitCSV(&buf, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, s.Rows([]int{0, 1}), back.Rows([]int{0, 1}))
	assert.Equal(t, s.Labels(), back.Labels())
}
