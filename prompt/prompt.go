// Package prompt renders the structured prompts behind the code
// operations (/fix, /refactor, /patch).
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Op identifies a code operation.
type Op string

// Supported code operations.
const (
	OpFix      Op = "fix"
	OpRefactor Op = "refactor"
	OpPatch    Op = "patch"
)

// Input holds the variables a code-operation template renders with.
type Input struct {
	Path         string
	Content      string
	Instructions string
}

var templates = map[Op]*template.Template{
	OpFix: template.Must(template.New("fix").Parse(
		"Fix bugs or errors in this file. Follow these instructions: {{.Instructions}}\n\n" +
			"File: {{.Path}}\n{{.Content}}\n\n" +
			"Provide a clear explanation of the changes and a complete replacement file " +
			"in a single fenced code block.")),
	OpRefactor: template.Must(template.New("refactor").Parse(
		"Refactor this file to improve readability, maintainability, or performance " +
			"according to: {{.Instructions}}\n\n" +
			"File: {{.Path}}\n{{.Content}}\n\n" +
			"Provide a short summary and the full refactored file in a single fenced code block.")),
	OpPatch: template.Must(template.New("patch").Parse(
		"Produce a patch (complete replacement) for this file according to: {{.Instructions}}\n\n" +
			"File: {{.Path}}\n{{.Content}}\n\n" +
			"Provide only the replacement file in a single fenced code block.")),
}

// Render produces the prompt for op with the given input.
func Render(op Op, in Input) (string, error) {
	tmpl, ok := templates[op]
	if !ok {
		return "", fmt.Errorf("unknown operation %q", op)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, in); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", op, err)
	}
	return sb.String(), nil
}
