package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/finxai/xai/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"FEATURE", "VALUE"}, [][]string{
		{"income", "1"},
		{"年収", "22"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "FEATURE  VALUE", lines[0])
	assert.Equal(t, "───────  ─────", lines[1])
	assert.Equal(t, "income   1", lines[2])
	// Wide runes take two cells each.
	assert.Equal(t, "年収     22", lines[3])
}

func TestTruncateName(t *testing.T) {
	tests := []struct {
		name   string
		maxLen int
		want   string
	}{
		{"income", 10, "income"},
		{"monthly_debt_payments", 10, "monthly_d…"},
		{"年収年収年収", 7, "年収年…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateName(tt.name, tt.maxLen))
		})
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "abcdef", padRight("abcdef", 4))
	assert.Equal(t, "年 ", padRight("年", 3))
}

func TestNumberFormats(t *testing.T) {
	assert.Equal(t, "+0.1235", signed(0.12345))
	assert.Equal(t, "-2.0000", signed(-2))
	assert.Equal(t, "0.5000", fixed(0.5))
	assert.Equal(t, "0.2500", ratio(metrics.Ratio{Value: 0.25, Defined: true}))
	assert.Equal(t, "n/a", ratio(metrics.Ratio{}))
}
