package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one CSV row keyed by lower-cased header.
type Record struct {
	Line   int
	fields map[string]string
}

// Get returns the trimmed value of the first non-empty column among keys.
func (r Record) Get(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.fields[key]); v != "" {
			return v
		}
	}
	return ""
}

// Ptr is Get returning nil for blank values.
func (r Record) Ptr(keys ...string) *string {
	v := r.Get(keys...)
	if v == "" {
		return nil
	}
	return &v
}

// Decimal parses a numeric column; blank yields nil.
func (r Record) Decimal(key string) (*decimal.Decimal, error) {
	raw := r.Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return &d, nil
}

// Int parses an integer column; blank yields nil. Values like "2021.0" are accepted.
func (r Record) Int(key string) (*int, error) {
	raw := r.Get(key)
	if raw == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return &n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	n := int(d.IntPart())
	return &n, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// Time parses a timestamp column; blank yields nil.
func (r Record) Time(key string) (*time.Time, error) {
	raw := r.Get(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: %q is not a timestamp", key, raw)
}

// Bool treats "true", "1" and "yes" as true.
func (r Record) Bool(key string) bool {
	switch strings.ToLower(r.Get(key)) {
	case "true", "1", "yes", "y", "t":
		return true
	default:
		return false
	}
}

// Records lazily yields the rows of a headered CSV. A malformed row yields an
// error for that row and iteration continues; a header failure ends it.
func Records(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			yield(Record{}, fmt.Errorf("read header: %w", err))
			return
		}
		for i, name := range header {
			header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		}

		for {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				line := 0
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					line = parseErr.StartLine
				}
				if !yield(Record{Line: line}, err) {
					return
				}
				continue
			}
			line, _ := reader.FieldPos(0)
			rec := Record{Line: line, fields: make(map[string]string, len(header))}
			for i, name := range header {
				if i < len(row) {
					rec.fields[name] = row[i]
				}
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
