// Package storage reads and writes chunk artifacts: raw log chunks coming in,
// classified and session batches going out. Batches are gzipped JSONL, one
// record per line.
package storage

import (
	"bufio"
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeBatch serializes records as gzipped JSONL. The returned slice is
// owned by the caller.
func EncodeBatch[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			return nil, fmt.Errorf("encode record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBatch parses a gzipped JSONL batch back into records.
func DecodeBatch[T any](data []byte) ([]T, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip open: %w", err)
	}
	defer gz.Close()

	var out []T
	dec := json.NewDecoder(gz)
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeLines splits a gzipped text chunk into its raw lines, skipping empty
// ones.
func DecodeLines(data []byte) ([]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip open: %w", err)
	}
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return lines, nil
}

// EncodeLines writes raw lines as a gzipped text chunk (the shape raw log
// chunks arrive in; used by tests and fixtures).
func EncodeLines(lines []string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		if _, err := gz.Write(append([]byte(line), '\n')); err != nil {
			_ = gz.Close()
			return nil, fmt.Errorf("write line: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
