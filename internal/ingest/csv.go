// Package ingest reads tracking fixes and tide tables from CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/pipeline"
)

// Fix columns. TAG, X, Y, TIME are required; resTime is optional.
var (
	requiredFixColumns  = []string{"TAG", "X", "Y", "TIME"}
	requiredTideColumns = []string{"timestamp", "waterlevel", "tide_number"}
)

// ColumnError reports a missing or malformed CSV column
type ColumnError struct {
	Column string
	Line   int
	Err    error
}

func (e *ColumnError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %s: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("column %s: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error { return e.Err }

// ErrMissingColumn is wrapped by ColumnError when a header lacks a column
var ErrMissingColumn = errors.New("missing column")

type header map[string]int

func readHeader(r *csv.Reader, required []string, fold bool) (header, error) {
	names, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := make(header, len(names))
	for i, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "\uFEFF"))
		if fold {
			n = strings.ToUpper(n)
		}
		h[n] = i
	}
	for _, col := range required {
		key := col
		if fold {
			key = strings.ToUpper(col)
		}
		if _, ok := h[key]; !ok {
			return nil, &ColumnError{Column: col, Err: ErrMissingColumn}
		}
	}
	return h, nil
}

func (h header) float(rec []string, col string, line int, def float64) (float64, error) {
	i, ok := h[col]
	if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" || strings.EqualFold(strings.TrimSpace(rec[i]), "NA") {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, &ColumnError{Column: col, Line: line, Err: err}
	}
	return v, nil
}

func (h header) str(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadFixes reads fixes grouped by tag. If the file has a resTime column
// the upstream residence times are returned with each input.
func ReadFixes(r io.Reader) ([]pipeline.Input, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	h, err := readHeader(cr, requiredFixColumns, true)
	if err != nil {
		return nil, err
	}
	_, hasResTime := h["RESTIME"]

	byTag := make(map[string]*pipeline.Input)
	var order []string
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		f, err := parseFix(h, rec, line)
		if err != nil {
			return nil, err
		}

		in, ok := byTag[f.TagID]
		if !ok {
			in = &pipeline.Input{Individual: f.TagID}
			if hasResTime {
				in.ResTime = make(map[int64]float64)
			}
			byTag[f.TagID] = in
			order = append(order, f.TagID)
		}
		in.Fixes = append(in.Fixes, f)

		if hasResTime {
			rt, err := h.float(rec, "RESTIME", line, 0)
			if err != nil {
				return nil, err
			}
			in.ResTime[f.Time] = rt
		}
	}

	sort.Strings(order)
	out := make([]pipeline.Input, 0, len(order))
	for _, tag := range order {
		out = append(out, *byTag[tag])
	}
	return out, nil
}

func parseFix(h header, rec []string, line int) (models.Fix, error) {
	f := models.Fix{TagID: h.str(rec, "TAG")}
	if f.TagID == "" {
		return f, &ColumnError{Column: "TAG", Line: line, Err: errors.New("empty tag")}
	}

	t, err := h.float(rec, "TIME", line, 0)
	if err != nil {
		return f, err
	}
	f.Time = int64(t)

	fields := []struct {
		col string
		dst *float64
	}{
		{"X", &f.X}, {"Y", &f.Y}, {"SD", &f.SD},
		{"VARX", &f.VarX}, {"VARY", &f.VarY}, {"COVXY", &f.CovXY},
	}
	for _, fld := range fields {
		v, err := h.float(rec, fld.col, line, 0)
		if err != nil {
			return f, err
		}
		*fld.dst = v
	}

	nbs, err := h.float(rec, "NBS", line, 0)
	if err != nil {
		return f, err
	}
	f.NBS = int(nbs)
	return f, nil
}

// ReadTides reads a tide table. Timestamps are RFC 3339, "2006-01-02
// 15:04:05" in UTC, or Unix seconds.
func ReadTides(r io.Reader) ([]models.TideRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	h, err := readHeader(cr, requiredTideColumns, false)
	if err != nil {
		return nil, err
	}

	var rows []models.TideRow
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(h.str(rec, "timestamp"))
		if err != nil {
			return nil, &ColumnError{Column: "timestamp", Line: line, Err: err}
		}
		level, err := h.float(rec, "waterlevel", line, 0)
		if err != nil {
			return nil, err
		}
		tn, err := strconv.Atoi(h.str(rec, "tide_number"))
		if err != nil {
			return nil, &ColumnError{Column: "tide_number", Line: line, Err: err}
		}
		rows = append(rows, models.TideRow{Timestamp: ts, Waterlevel: level, TideNumber: tn})
	}
	return rows, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return time.Unix(0, int64(sec*1e9)).UTC(), nil
}

// ReadFixesFile opens path and reads fixes from it
func ReadFixesFile(path string) ([]pipeline.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFixes(f)
}

// ReadTidesFile opens path and reads a tide table from it
func ReadTidesFile(path string) ([]models.TideRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTides(f)
}
