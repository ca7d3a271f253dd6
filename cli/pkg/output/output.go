// Package output renders hwctl results as colored status lines, tables or
// JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI SGR codes.
const (
	reset  = "\033[0m"
	bold   = "1"
	red    = "31"
	green  = "32"
	yellow = "33"
	cyan   = "36"
	white  = "37"
)

// Printer writes status lines to Out and errors to Err.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// New returns a Printer. Color is disabled when NO_COLOR is set.
func New(out, errOut io.Writer) *Printer {
	_, noColor := os.LookupEnv("NO_COLOR")
	return &Printer{Out: out, Err: errOut, Color: !noColor}
}

var std = New(os.Stdout, os.Stderr)

func (p *Printer) paint(s string, codes ...string) string {
	if !p.Color || len(codes) == 0 {
		return s
	}
	return "\033[" + strings.Join(codes, ";") + "m" + s + reset
}

func (p *Printer) Success(format string, a ...any) {
	fmt.Fprintln(p.Out, p.paint("✓ "+fmt.Sprintf(format, a...), green, bold))
}

func (p *Printer) Error(format string, a ...any) {
	fmt.Fprintln(p.Err, p.paint("✗ "+fmt.Sprintf(format, a...), red, bold))
}

func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintln(p.Out, p.paint(fmt.Sprintf(format, a...), cyan))
}

func (p *Printer) Warn(format string, a ...any) {
	fmt.Fprintln(p.Out, p.paint("⚠ "+fmt.Sprintf(format, a...), yellow))
}

// JSON writes v indented.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Success(format string, a ...any) { std.Success(format, a...) }
func Error(format string, a ...any)   { std.Error(format, a...) }
func Info(format string, a ...any)    { std.Info(format, a...) }
func Warn(format string, a ...any)    { std.Warn(format, a...) }
func JSON(v any) error                { return std.JSON(v) }

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table to the standard printer.
func (t *Table) Render() {
	t.RenderTo(std)
}

// RenderTo pads every column to its widest cell.
func (t *Table) RenderTo(p *Printer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		fmt.Fprint(p.Out, p.paint(fmt.Sprintf("%-*s", widths[i], h), white, bold), "  ")
	}
	fmt.Fprintln(p.Out)

	for i := range t.headers {
		fmt.Fprint(p.Out, strings.Repeat("-", widths[i]), "  ")
	}
	fmt.Fprintln(p.Out)

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			fmt.Fprintf(p.Out, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(p.Out)
	}
}
