package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultTableWidth     = 100
	defaultMinDetailWidth = 24
	columnGap             = "  "
)

// TableOptions describes a table whose last column wraps to the terminal
// width. Every other column is padded to its widest cell.
type TableOptions struct {
	Title          string
	Headers        []string
	Rows           [][]string
	EmptyText      string
	DefaultWidth   int
	MinDetailWidth int
}

func PrintTable(out io.Writer, opts TableOptions) {
	if out == nil {
		out = os.Stdout
	}

	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%d)", title, len(opts.Rows)))
	}
	if len(opts.Rows) == 0 {
		empty := strings.TrimSpace(opts.EmptyText)
		if empty == "" {
			empty = "No entries."
		}
		fmt.Fprintln(out, Warn(empty))
		return
	}

	cols := len(opts.Headers)
	for _, row := range opts.Rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}

	widths := make([]int, cols-1)
	for i := range widths {
		widths[i] = utf8.RuneCountInString(cell(opts.Headers, i))
		for _, row := range opts.Rows {
			if w := utf8.RuneCountInString(cell(row, i)); w > widths[i] {
				widths[i] = w
			}
		}
	}
	prefix := 0
	for _, w := range widths {
		prefix += w + len(columnGap)
	}
	detailWidth := tableDetailWidth(out, prefix, opts.DefaultWidth, opts.MinDetailWidth)

	var header, rule strings.Builder
	for i, w := range widths {
		header.WriteString(Key(padRightRunes(cell(opts.Headers, i), w)) + columnGap)
		rule.WriteString(Dim(strings.Repeat("-", w)) + columnGap)
	}
	header.WriteString(Key(cell(opts.Headers, cols-1)))
	rule.WriteString(Dim(strings.Repeat("-", detailWidth)))
	fmt.Fprintln(out, header.String())
	fmt.Fprintln(out, rule.String())

	for _, row := range opts.Rows {
		var lead strings.Builder
		for i, w := range widths {
			text := padRightRunes(cell(row, i), w)
			if i == 0 {
				text = Success(text)
			}
			lead.WriteString(text + columnGap)
		}
		lines := wrapTextRunes(cell(row, cols-1), detailWidth)
		fmt.Fprintln(out, lead.String()+lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintln(out, strings.Repeat(" ", prefix)+line)
		}
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func tableDetailWidth(out io.Writer, prefix, defaultWidth, minDetailWidth int) int {
	if defaultWidth <= 0 {
		defaultWidth = defaultTableWidth
	}
	if minDetailWidth <= 0 {
		minDetailWidth = defaultMinDetailWidth
	}

	width := defaultWidth
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if termWidth, _, err := term.GetSize(int(file.Fd())); err == nil && termWidth > 0 {
			width = termWidth
		}
	}
	if w := width - prefix; w > minDetailWidth {
		return w
	}
	return minDetailWidth
}

func padRightRunes(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

// wrapTextRunes breaks text on spaces, splitting words longer than width.
func wrapTextRunes(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	if width <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	current := ""
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		switch {
		case word == "":
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
