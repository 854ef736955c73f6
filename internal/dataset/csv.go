package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultLabelColumns are the header names recognized as the label column
// when no explicit name is given.
var DefaultLabelColumns = []string{"label", "target"}

// CSVOptions controls how a split CSV is interpreted.
type CSVOptions struct {
	// LabelColumn names the label column. Empty means: a column named
	// "label" or "target", else the last column.
	LabelColumn string
	// Unlabeled treats every column as a feature.
	Unlabeled bool
}

// LoadSplitCSV reads a held-out split from a CSV file.
func LoadSplitCSV(path string, opts CSVOptions) (*Split, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	s, err := ReadSplitCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", path, err)
	}
	return s, nil
}

// ReadSplitCSV parses a held-out split. The first record is the header.
// Feature cells must be numeric; label cells must be integers, or the
// strings true/false.
func ReadSplitCSV(r io.Reader, opts CSVOptions) (*Split, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty (no header row)")
	}

	headers := records[0]
	labelCol := -1
	if !opts.Unlabeled {
		labelCol = findLabelColumn(headers, opts.LabelColumn)
		if labelCol < 0 {
			return nil, fmt.Errorf("label column %q not found", opts.LabelColumn)
		}
	}

	features := make([]string, 0, len(headers))
	for j, h := range headers {
		if j != labelCol {
			features = append(features, strings.TrimSpace(h))
		}
	}

	rows := make([][]float64, 0, len(records)-1)
	var labels []int
	if labelCol >= 0 {
		labels = make([]int, 0, len(records)-1)
	}
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := make([]float64, 0, len(features))
		for j, cell := range record {
			if j == labelCol {
				l, err := parseLabel(cell)
				if err != nil {
					return nil, fmt.Errorf("row %d: label: %w", i+2, err)
				}
				labels = append(labels, l)
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: column %q: %w", i+2, headers[j], err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	return NewSplit(features, rows, labels)
}

func findLabelColumn(headers []string, name string) int {
	if name != "" {
		for j, h := range headers {
			if strings.TrimSpace(h) == name {
				return j
			}
		}
		return -1
	}
	for _, want := range DefaultLabelColumns {
		for j, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return j
			}
		}
	}
	return len(headers) - 1
}

func parseLabel(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "true", "yes":
		return 1, nil
	case "false", "no":
		return 0, nil
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid label %q", cell)
	}
	return int(f), nil
}

// WriteSplitCSV writes s with the label as the last column named "label".
func WriteSplitCSV(w io.Writer, s *Split) error {
	cw := csv.NewWriter(w)
	header := append([]string(nil), s.Features...)
	if s.Labeled() {
		header = append(header, "label")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		rec := make([]string, 0, len(header))
		for _, v := range s.rows[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if s.Labeled() {
			rec = append(rec, strconv.Itoa(s.labels[i]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
