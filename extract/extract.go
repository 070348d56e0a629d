// Package extract turns local files into text suitable for the session
// context. Structured formats are normalized (pretty-printed JSON,
// re-marshaled YAML, pipe-joined CSV rows); everything else is read as
// text. Binary document formats are rejected with ErrUnsupportedFormat
// rather than shipping format parsers.
package extract

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat indicates the file's format has no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// unsupported lists binary document extensions patchpilot cannot extract.
var unsupported = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true,
	".xlsx": true, ".xls": true, ".xlsm": true,
	".pptx": true, ".ppt": true,
	".rtf": true, ".odt": true,
}

// File extracts the content of path as text. The returned identifier is
// the absolute path. Fails with ErrUnsupportedFormat for binary document
// formats and with a wrapped read error otherwise.
func File(path string) (identifier, content string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(abs))
	if unsupported[ext] {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	var text string
	switch ext {
	case ".json":
		text, err = readJSON(abs)
	case ".yaml", ".yml":
		text, err = readYAML(abs)
	case ".csv":
		text, err = readCSV(abs)
	default:
		text, err = readText(abs)
	}
	if err != nil {
		return "", "", fmt.Errorf("extract %s: %w", abs, err)
	}
	return abs, text, nil
}

// readText reads a file as text. Non-UTF-8 content falls back to a
// latin-1 interpretation so legacy files still load.
func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	// latin-1: every byte maps to the code point of the same value.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

// readJSON parses and pretty-prints a JSON file.
func readJSON(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("parse JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

// readYAML parses and re-marshals a YAML file in normalized form.
func readYAML(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var data any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("parse YAML: %w", err)
	}
	normalized, err := yaml.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(normalized), nil
}

// readCSV reads a CSV file and joins each row with " | ".
func readCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse CSV: %w", err)
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " | ")
	}
	return strings.Join(lines, "\n"), nil
}
