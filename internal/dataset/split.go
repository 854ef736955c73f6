package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Split is an immutable, ordered held-out partition of labeled feature rows.
// Row order is the order rows were loaded in and never changes.
type Split struct {
	Features []string
	rows     [][]float64
	labels   []int
	labeled  bool
}

// NewSplit builds a split from rows in feature order. labels may be nil for
// an unlabeled split; otherwise it must have one entry per row.
func NewSplit(features []string, rows [][]float64, labels []int) (*Split, error) {
	for i, r := range rows {
		if len(r) != len(features) {
			return nil, fmt.Errorf("split: row %d has %d values, expected %d", i, len(r), len(features))
		}
	}
	if labels != nil && len(labels) != len(rows) {
		return nil, fmt.Errorf("split: %d labels for %d rows", len(labels), len(rows))
	}
	s := &Split{
		Features: append([]string(nil), features...),
		rows:     make([][]float64, len(rows)),
		labeled:  labels != nil,
	}
	for i, r := range rows {
		s.rows[i] = append([]float64(nil), r...)
	}
	if labels != nil {
		s.labels = append([]int(nil), labels...)
	}
	return s, nil
}

// Len returns the number of rows.
func (s *Split) Len() int { return len(s.rows) }

// Labeled reports whether the split carries labels.
func (s *Split) Labeled() bool { return s.labeled }

// Row returns a copy of row i.
func (s *Split) Row(i int) []float64 {
	return append([]float64(nil), s.rows[i]...)
}

// Label returns the label of row i and whether the split is labeled.
func (s *Split) Label(i int) (int, bool) {
	if !s.labeled {
		return 0, false
	}
	return s.labels[i], true
}

// Labels returns a copy of all labels, or nil for an unlabeled split.
func (s *Split) Labels() []int {
	if !s.labeled {
		return nil
	}
	out := make([]int, len(s.labels))
	copy(out, s.labels)
	return out
}

// Column returns a copy of feature column j.
func (s *Split) Column(j int) []float64 {
	col := make([]float64, len(s.rows))
	for i, r := range s.rows {
		col[i] = r[j]
	}
	return col
}

// Sample returns up to n distinct row indices drawn with a fixed seed. The
// result is capped at Len and returned in draw order, so the same (n, seed)
// always yields the same indices.
func (s *Split) Sample(n int, seed int64) []int {
	if n <= 0 || n > len(s.rows) {
		n = len(s.rows)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(len(s.rows))
	return perm[:n]
}

// Rows returns copies of the rows at the given indices.
func (s *Split) Rows(idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for k, i := range idx {
		out[k] = s.Row(i)
	}
	return out
}

// ColumnStats returns the per-feature mean and population standard deviation.
func (s *Split) ColumnStats() (mean, std []float64) {
	d := len(s.Features)
	mean = make([]float64, d)
	std = make([]float64, d)
	if len(s.rows) == 0 {
		return mean, std
	}
	col := make([]float64, len(s.rows))
	for j := 0; j < d; j++ {
		for i, r := range s.rows {
			col[i] = r[j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
	}
	return mean, std
}
