package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoTarget is returned when the requested target column is missing.
var ErrNoTarget = errors.New("dataset: target column not found")

// Frame is a loaded dataset: named feature columns plus the target column.
type Frame struct {
	Names      []string
	Columns    []Column
	TargetName string
	Target     Column
}

// NumSamples returns the number of rows in the frame.
func (f *Frame) NumSamples() int {
	return f.Target.Len()
}

// Take removes the named feature column from the frame and returns it. It is
// used to pull a sample weight column out of the features.
func (f *Frame) Take(name string) (Column, bool) {
	for i, n := range f.Names {
		if n != name {
			continue
		}
		col := f.Columns[i]
		f.Names = append(f.Names[:i:i], f.Names[i+1:]...)
		f.Columns = append(f.Columns[:i:i], f.Columns[i+1:]...)
		return col, true
	}
	return Column{}, false
}

// LoadCSV reads a CSV file with a header row. The target column is selected by
// name; an empty name selects the last column.
func LoadCSV(filePath, target string) (*Frame, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	frame, err := ReadCSV(file, target)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", filePath).
		Int("samples", frame.NumSamples()).
		Int("features", len(frame.Columns)).
		Msg("CSV data loaded successfully")

	return frame, nil
}

// ReadCSV parses CSV data with a header row.
func ReadCSV(r io.Reader, target string) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cells := make([][]string, len(header))
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		for i := range header {
			cells[i] = append(cells[i], strings.TrimSpace(record[i]))
		}
	}

	columns := make([]Column, len(header))
	for i := range header {
		columns[i] = typeCells(cells[i])
	}

	return split(header, columns, target)
}

// LoadJSON reads a stream of JSON objects, one per sample. Feature columns are
// ordered by key name.
func LoadJSON(filePath, target string) (*Frame, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	frame, err := ReadJSON(file, target)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", filePath).
		Int("samples", frame.NumSamples()).
		Int("features", len(frame.Columns)).
		Msg("JSON data loaded successfully")

	return frame, nil
}

// ReadJSON parses a stream of JSON objects.
func ReadJSON(r io.Reader, target string) (*Frame, error) {
	decoder := json.NewDecoder(r)

	var records []map[string]any
	keys := make(map[string]struct{})
	for decoder.More() {
		var record map[string]any
		if err := decoder.Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to decode JSON record %d: %w", len(records), err)
		}
		for k := range record {
			keys[k] = struct{}{}
		}
		records = append(records, record)
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	columns := make([]Column, len(names))
	for i, name := range names {
		cells := make([]string, len(records))
		for r, record := range records {
			switch v := record[name].(type) {
			case nil:
			case string:
				cells[r] = v
			case float64:
				cells[r] = strconv.FormatFloat(v, 'g', -1, 64)
			case bool:
				cells[r] = strconv.FormatBool(v)
			default:
				return nil, fmt.Errorf("record %d: unsupported value for %q", r, name)
			}
		}
		columns[i] = typeCells(cells)
	}

	if target == "" && len(names) > 0 {
		target = names[len(names)-1]
	}
	return split(names, columns, target)
}

func split(header []string, columns []Column, target string) (*Frame, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: dataset has no columns", ErrNoTarget)
	}
	idx := len(header) - 1
	if target != "" {
		idx = -1
		for i, h := range header {
			if h == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoTarget, target)
		}
	}

	frame := &Frame{TargetName: header[idx], Target: columns[idx]}
	for i := range header {
		if i == idx {
			continue
		}
		frame.Names = append(frame.Names, header[i])
		frame.Columns = append(frame.Columns, columns[i])
	}
	return frame, nil
}

// typeCells keeps a column numeric when every non-empty cell parses as a
// float; empty cells become NaN. Anything else stays a string column.
func typeCells(cells []string) Column {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		if s == "" {
			vals[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Column{Strings: cells}
		}
		vals[i] = f
	}
	return Column{Floats: vals}
}
