// Package output renders prompt-script execution to the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// Mode represents the output mode.
type Mode int

const (
	// ModePlain is the styled text mode.
	ModePlain Mode = iota
	// ModeQuiet suppresses everything except errors.
	ModeQuiet
)

// Printer wraps pterm for styled output. Transcript methods are no-ops
// in quiet mode; Error always prints.
type Printer struct {
	mode   Mode
	debug  bool
	writer io.Writer
}

// NewPrinter creates a Printer for the given output mode.
func NewPrinter(mode Mode, debug bool) *Printer {
	return &Printer{mode: mode, debug: debug, writer: os.Stdout}
}

// NewPrinterWithWriter creates a Printer with a custom writer (for testing).
func NewPrinterWithWriter(mode Mode, debug bool, w io.Writer) *Printer {
	return &Printer{mode: mode, debug: debug, writer: w}
}

func (p *Printer) active() bool {
	return p.mode == ModePlain
}

// Statement prints one script statement as it executes.
func (p *Printer) Statement(seq int, keyword, value string) {
	if !p.active() {
		return
	}
	lines := strings.Split(value, "\n")
	fmt.Fprintf(p.writer, "%s %s %s\n",
		pterm.Gray(fmt.Sprintf("%02d", seq)),
		pterm.Cyan(fmt.Sprintf("%-10s", keyword)),
		pterm.Green(lines[0]))
	for _, line := range lines[1:] {
		fmt.Fprintf(p.writer, "   %-10s %s\n", "", pterm.Green(line))
	}
}

// Response prints assistant text received from the model.
func (p *Printer) Response(text string) {
	if !p.active() {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(p.writer, "   %s\n", line)
	}
}

// ToolCall prints a tool invocation requested by the model.
func (p *Printer) ToolCall(name string, args map[string]any) {
	if !p.active() {
		return
	}
	fmt.Fprintf(p.writer, "   %s %s(%s)\n", pterm.Yellow("→"), pterm.Yellow(name), formatArgs(args))
}

// ToolResult prints what a tool returned, truncated for the terminal.
func (p *Printer) ToolResult(name, result string) {
	if !p.active() {
		return
	}
	const max = 200
	flat := strings.ReplaceAll(result, "\n", " ")
	if len(flat) > max {
		flat = flat[:max] + "…"
	}
	fmt.Fprintf(p.writer, "   %s %s: %s\n", pterm.Yellow("←"), name, flat)
}

// CostSummary prints the running token and cost counters after a turn.
func (p *Printer) CostSummary(tokensIn, tokensOut int, costIn, costOut float64) {
	if !p.active() {
		return
	}
	fmt.Fprintf(p.writer, "   %s\n", pterm.Gray(fmt.Sprintf(
		"tokens in=%d ($%.4f) out=%d ($%.4f) total=$%.4f",
		tokensIn, costIn, tokensOut, costOut, costIn+costOut)))
}

// Requesting announces one model turn.
func (p *Printer) Requesting(provider, model string, turn int) {
	if !p.active() {
		return
	}
	fmt.Fprintf(p.writer, "   %s\n", pterm.Blue(fmt.Sprintf("requesting %s::%s (call %d)", provider, model, turn)))
}

// Info prints an informational message.
func (p *Printer) Info(format string, args ...any) {
	if !p.active() {
		return
	}
	pterm.Info.WithWriter(p.writer).Printfln(format, args...)
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...any) {
	if !p.active() {
		return
	}
	pterm.Success.WithWriter(p.writer).Printfln(format, args...)
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...any) {
	if !p.active() {
		return
	}
	pterm.Warning.WithWriter(p.writer).Printfln(format, args...)
}

// Error prints an error message. Errors print in quiet mode too.
func (p *Printer) Error(format string, args ...any) {
	pterm.Error.WithWriter(p.writer).Printfln(format, args...)
}

// Debug prints a debug message (only with debug enabled).
func (p *Printer) Debug(format string, args ...any) {
	if !p.active() || !p.debug {
		return
	}
	dbg := &pterm.PrefixPrinter{
		Prefix: pterm.Prefix{
			Text:  " DEBUG ",
			Style: pterm.NewStyle(pterm.BgGray, pterm.FgWhite),
		},
		Writer: p.writer,
	}
	dbg.Printfln(format, args...)
}

// Table prints a table with headers and rows.
func (p *Printer) Table(headers []string, rows [][]string) {
	if !p.active() {
		return
	}
	data := pterm.TableData{headers}
	data = append(data, rows...)
	pterm.DefaultTable.
		WithWriter(p.writer).
		WithHasHeader().
		WithData(data).
		Render() //nolint:errcheck
}

// KeyValue prints key-value pairs in a formatted way.
func (p *Printer) KeyValue(pairs [][]string) {
	if !p.active() {
		return
	}
	for _, pair := range pairs {
		if len(pair) == 2 {
			fmt.Fprintf(p.writer, "  %s  %s\n",
				pterm.LightCyan(pair[0]+":"),
				pair[1])
		}
	}
}

// Println prints a plain line.
func (p *Printer) Println(text string) {
	if !p.active() {
		return
	}
	fmt.Fprintln(p.writer, text)
}

// Printf prints plain formatted text.
func (p *Printer) Printf(format string, args ...any) {
	if !p.active() {
		return
	}
	fmt.Fprintf(p.writer, format, args...)
}

// Divider prints a horizontal rule.
func (p *Printer) Divider() {
	if !p.active() {
		return
	}
	fmt.Fprintln(p.writer, pterm.Gray(strings.Repeat("─", 50)))
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}
