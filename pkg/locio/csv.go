// Package locio reads and writes localization tables as CSV.
package locio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"frameconnect/internal/models"
)

// Columns is the header written by Write, in order
var Columns = []string{
	"id", "frame", "dataset", "track_id",
	"x", "y", "sigma_x", "sigma_y", "sigma_xy",
	"photons", "sigma_photons", "background", "sigma_background",
}

var requiredColumns = []string{"frame", "x", "y", "sigma_x", "sigma_y"}

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// ParseError reports a cell that could not be parsed
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: column %s: cannot parse %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Read parses localizations from CSV with a header row. Column order is free
// and unknown columns are ignored. Missing optional columns default to zero,
// except dataset, which defaults to 1, and id, which defaults to the row
// number starting at 1.
func Read(r io.Reader) ([]models.Localization, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err == io.EOF {
		return []models.Localization{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	locs := make([]models.Localization, 0)
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		line, _ := reader.FieldPos(0)

		p := rowParser{record: record, index: index, line: line}
		l := models.Localization{
			X:               p.float("x", 0),
			Y:               p.float("y", 0),
			SigmaX:          p.float("sigma_x", 0),
			SigmaY:          p.float("sigma_y", 0),
			SigmaXY:         p.float("sigma_xy", 0),
			Photons:         p.float("photons", 0),
			SigmaPhotons:    p.float("sigma_photons", 0),
			Background:      p.float("background", 0),
			SigmaBackground: p.float("sigma_background", 0),
			Frame:           p.int("frame", 0),
			Dataset:         p.int("dataset", 1),
			TrackID:         p.int("track_id", 0),
			ID:              p.int("id", row),
		}
		if p.err != nil {
			return nil, p.err
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// ReadFile reads localizations from the CSV file at path
func ReadFile(path string) ([]models.Localization, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Write writes localizations as CSV with the Columns header
func Write(w io.Writer, locs []models.Localization) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, l := range locs {
		record := []string{
			strconv.Itoa(l.ID), strconv.Itoa(l.Frame), strconv.Itoa(l.Dataset), strconv.Itoa(l.TrackID),
			formatFloat(l.X), formatFloat(l.Y), formatFloat(l.SigmaX), formatFloat(l.SigmaY), formatFloat(l.SigmaXY),
			formatFloat(l.Photons), formatFloat(l.SigmaPhotons), formatFloat(l.Background), formatFloat(l.SigmaBackground),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write localization %d: %w", l.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes localizations to the CSV file at path
func WriteFile(path string, locs []models.Localization) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, locs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// rowParser keeps the first parse error of a row
type rowParser struct {
	record []string
	index  map[string]int
	line   int
	err    error
}

func (p *rowParser) cell(column string) (string, bool) {
	i, ok := p.index[column]
	if !ok || i >= len(p.record) {
		return "", false
	}
	v := strings.TrimSpace(p.record[i])
	return v, v != ""
}

func (p *rowParser) float(column string, fallback float64) float64 {
	v, ok := p.cell(column)
	if !ok || p.err != nil {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = &ParseError{Line: p.line, Column: column, Value: v, Err: err}
		return fallback
	}
	return f
}

func (p *rowParser) int(column string, fallback int) int {
	v, ok := p.cell(column)
	if !ok || p.err != nil {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// frame columns exported as floats ("12.0")
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			p.err = &ParseError{Line: p.line, Column: column, Value: v, Err: err}
			return fallback
		}
		n = int(f)
	}
	return n
}
