// Package cli implements the interactive command layer: a styled terminal
// display and the slash-command dispatcher.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Display centralizes terminal output so the rest of the program stays
// free of I/O. Styling is applied through lipgloss, which honors
// NO_COLOR and downgrades on non-TTY output.
type Display struct {
	out io.Writer

	info      lipgloss.Style
	success   lipgloss.Style
	warn      lipgloss.Style
	errStyle  lipgloss.Style
	dim       lipgloss.Style
	bold      lipgloss.Style
	assistant lipgloss.Style
}

// NewDisplay creates a display writing to out. Pass nil for stdout.
func NewDisplay(out io.Writer) *Display {
	if out == nil {
		out = os.Stdout
	}
	return &Display{
		out:       out,
		info:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		success:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		dim:       lipgloss.NewStyle().Faint(true),
		bold:      lipgloss.NewStyle().Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
}

// Stream prints streamed model content inline without a newline.
func (d *Display) Stream(text string) {
	fmt.Fprint(d.out, text)
}

// Reasoning prints thinking tokens dimmed, inline.
func (d *Display) Reasoning(text string) {
	fmt.Fprint(d.out, d.dim.Render(text))
}

// Content implements the session sink for response text.
func (d *Display) Content(text string) { d.Stream(text) }

func (d *Display) Info(text string) {
	fmt.Fprintln(d.out, d.info.Render(text))
}

func (d *Display) Success(text string) {
	fmt.Fprintln(d.out, d.success.Render("✓ "+text))
}

func (d *Display) Warning(text string) {
	fmt.Fprintln(d.out, d.warn.Render("⚠ "+text))
}

func (d *Display) Error(text string) {
	fmt.Fprintln(d.out, d.errStyle.Render("Error: "+text))
}

func (d *Display) Newline() {
	fmt.Fprintln(d.out)
}

// Separator prints a dim horizontal rule.
func (d *Display) Separator() {
	fmt.Fprintln(d.out, d.dim.Render(strings.Repeat("-", 60)))
}

// AssistantHeader prints the prefix before a streamed model response.
func (d *Display) AssistantHeader() {
	fmt.Fprintf(d.out, "\n%s ", d.assistant.Render("Assistant:"))
}

// Table prints a simple aligned table with a bold header row.
func (d *Display) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}

	fmt.Fprintln(d.out, d.bold.Render(joinColumns(headers, widths)))

	total := 0
	for _, w := range widths {
		total += w
	}
	total += 2 * (len(headers) - 1)
	fmt.Fprintln(d.out, d.dim.Render(strings.Repeat("-", total)))

	for _, row := range rows {
		fmt.Fprintln(d.out, joinColumns(row, widths))
	}
}

func joinColumns(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}
	return strings.Join(padded, "  ")
}
