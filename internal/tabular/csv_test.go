package tabular

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/rxcompass/internal/apperr"
)

func buildCSV(cols int, rows ...[]string) string {
	var b strings.Builder
	for j := 0; j < cols; j++ {
		if j > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "symptom_%d", j)
	}
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(strings.Join(r, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func indicatorRow(cols int, present ...int) []string {
	row := make([]string, cols)
	for i := range row {
		row[i] = "0"
	}
	for _, p := range present {
		row[p] = "1"
	}
	return row
}

func TestParse(t *testing.T) {
	input := buildCSV(82, indicatorRow(82, 0, 5), indicatorRow(82), indicatorRow(82, 81))

	m, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, 82, m.Cols())
	assert.Equal(t, "symptom_0", m.Columns[0])
	assert.Equal(t, []int{0, 1, 2}, m.RowIndex)
	assert.Equal(t, 1.0, m.Row(0)[5])
	assert.Equal(t, 0.0, m.Row(1)[5])
	assert.Equal(t, 1.0, m.Data.At(2, 81))
}

func TestParseStripsBOMAndSpaces(t *testing.T) {
	input := "\ufeff" + buildCSV(82, indicatorRow(82, 3))
	input = strings.Replace(input, ",1,", ", 1 ,", 1)

	m, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "symptom_0", m.Columns[0])
	assert.Equal(t, 1.0, m.Row(0)[3])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  apperr.Kind
		msg   string
	}{
		{"empty", "", apperr.Format, "empty"},
		{"too few columns", buildCSV(81, indicatorRow(81)), apperr.Validation, "Found 81 columns"},
		{"no rows", buildCSV(82), apperr.Validation, "no patient rows"},
		{"non numeric", buildCSV(82, append(indicatorRow(81), "yes")), apperr.Format, "symptom_81"},
		{"nan", buildCSV(82, append(indicatorRow(81), "NaN")), apperr.Format, "symptom_81"},
		{"inf", buildCSV(82, append([]string{"Inf"}, indicatorRow(81)...)), apperr.Format, "symptom_0"},
		{"negative inf", buildCSV(82, append([]string{"-inf"}, indicatorRow(81)...)), apperr.Format, "symptom_0"},
		{"overflow", buildCSV(82, append(indicatorRow(81), "1e400")), apperr.Format, "symptom_81"},
		{"ragged", buildCSV(82, indicatorRow(80)), apperr.Format, "parse CSV"},
		{"bad quoting", buildCSV(82) + "\"0,1\n", apperr.Format, "parse CSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewRejectsWidthMismatch(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]float64{{1}})
	require.Error(t, err)
	assert.Equal(t, apperr.Format, apperr.KindOf(err))
}
