package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n")

	id, content, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(id) {
		t.Errorf("identifier %q is not absolute", id)
	}
	if content != "package main\n" {
		t.Errorf("content = %q", content)
	}
}

func TestFile_JSONPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.json", `{"b":1,"a":[2,3]}`)

	_, content, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "\n  ") {
		t.Errorf("expected indented JSON, got %q", content)
	}
}

func TestFile_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", "{not json")

	_, _, err := File(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFile_YAMLNormalized(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", "name:   demo\ncount: 3\n")

	_, content, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "name: demo") {
		t.Errorf("expected normalized YAML, got %q", content)
	}
}

func TestFile_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "table.csv", "a,b,c\n1,2,3\n")

	_, content, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "a | b | c\n1 | 2 | 3"
	if content != want {
		t.Errorf("content = %q, expected %q", content, want)
	}
}

func TestFile_UnsupportedFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"doc.pdf", "doc.docx", "sheet.xlsx", "deck.pptx", "doc.rtf", "doc.odt"} {
		path := writeFile(t, dir, name, "binary-ish")
		_, _, err := File(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestFile_Missing(t *testing.T) {
	_, _, err := File(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestFile_Latin1Fallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.txt")
	if err := os.WriteFile(path, []byte{'c', 'a', 'f', 0xe9}, 0o644); err != nil {
		t.Fatal(err)
	}

	_, content, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if content != "café" {
		t.Errorf("content = %q, expected café", content)
	}
}
