// Package tabular turns an uploaded CSV of per-patient symptom indicators
// into a dense numeric matrix with named columns.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/apperr"
)

// MinColumns is the narrowest upload accepted. Column names are not checked
// against the model's feature names; any 82+ columns pass.
const MinColumns = 82

// Matrix is one request's input: a row per patient, a column per symptom.
type Matrix struct {
	Columns  []string
	Data     *mat.Dense
	RowIndex []int
}

func (m *Matrix) Rows() int {
	r, _ := m.Data.Dims()
	return r
}

func (m *Matrix) Cols() int {
	return len(m.Columns)
}

// Row returns row i without copying. Callers must not modify it.
func (m *Matrix) Row(i int) []float64 {
	return m.Data.RawRowView(i)
}

// New builds a Matrix from already-numeric rows. It is used by tests and by
// callers that do not go through CSV.
func New(columns []string, rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, apperr.New(apperr.Validation, "Dataset contains no patient rows")
	}
	data := make([]float64, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, apperr.New(apperr.Format,
				fmt.Sprintf("row %d has %d values, expected %d", i+1, len(row), len(columns)))
		}
		data = append(data, row...)
	}
	index := make([]int, len(rows))
	for i := range index {
		index[i] = i
	}
	return &Matrix{
		Columns:  append([]string(nil), columns...),
		Data:     mat.NewDense(len(rows), len(columns), data),
		RowIndex: index,
	}, nil
}

// Parse reads a header row followed by numeric data rows. Unparseable input
// yields an apperr.Format error; fewer than MinColumns columns or an empty
// body yields apperr.Validation.
func Parse(r io.Reader) (*Matrix, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.Format, "Uploaded file is empty")
		}
		return nil, apperr.Wrap(apperr.Format, err, "Could not parse CSV header")
	}
	columns := make([]string, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[i] = strings.TrimSpace(name)
	}
	if len(columns) < MinColumns {
		return nil, apperr.New(apperr.Validation,
			fmt.Sprintf("Dataset must have at least %d features. Found %d columns", MinColumns, len(columns)))
	}

	var rows [][]float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Format, err, "Could not parse CSV")
		}
		row := make([]float64, len(record))
		for j, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, apperr.New(apperr.Format,
					fmt.Sprintf("Invalid value %q at line %d, column %q", cell, line, columns[j]))
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return New(columns, rows)
}
