// Package office defines how chat output reaches the active document.
package office

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Format selects how a response is inserted.
type Format string

const (
	FormatText      Format = "text"
	FormatTable     Format = "table"
	FormatSelection Format = "selection" // Word: replace the current selection
)

// DetectFormat picks table for content that looks tabular and text otherwise.
func DetectFormat(content string) Format {
	if IsTableLike(content) {
		return FormatTable
	}
	return FormatText
}

// TextOptions address a worksheet cell. Empty fields mean the active sheet and A1.
type TextOptions struct {
	Worksheet string
	Range     string
}

// TableOptions place a table. StartCell defaults to A1.
type TableOptions struct {
	StartCell  string
	HasHeaders bool
}

// DocumentHost is implemented by the application hosting the chat panel.
type DocumentHost interface {
	InsertText(ctx context.Context, text string, opts TextOptions) error
	InsertTable(ctx context.Context, rows [][]string, opts TableOptions) error
	InsertTextReplacingSelection(ctx context.Context, text string) error
}

var (
	separatorRow = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	numberedLine = regexp.MustCompile(`^\d+\.`)
)

// ParseTable splits pipe- or tab-delimited lines into rows. Markdown
// separator rows and lines with a single cell are dropped.
func ParseTable(content string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || separatorRow.MatchString(line) {
			continue
		}
		var cells []string
		switch {
		case strings.Contains(line, "|"):
			line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
			for _, cell := range strings.Split(line, "|") {
				cells = append(cells, strings.TrimSpace(cell))
			}
		case strings.Contains(line, "\t"):
			cells = strings.Split(line, "\t")
		default:
			continue
		}
		if len(cells) > 1 {
			rows = append(rows, cells)
		}
	}
	return rows
}

// IsTableLike reports whether content is worth offering as a table.
func IsTableLike(content string) bool {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	structured := false
	for _, line := range lines {
		if strings.ContainsAny(line, "|\t") {
			return true
		}
		if strings.Contains(line, ":") || numberedLine.MatchString(strings.TrimSpace(line)) {
			structured = true
		}
	}
	return structured && len(lines) > 2
}

// Insert places content in the document. An empty format is detected from the
// content. Tables fall back to plain text when no rows can be parsed.
func Insert(ctx context.Context, host DocumentHost, content string, format Format) error {
	if format == "" {
		format = DetectFormat(content)
	}
	switch format {
	case FormatSelection:
		if err := host.InsertTextReplacingSelection(ctx, content); err != nil {
			return fmt.Errorf("failed to replace selection: %w", err)
		}
		return nil
	case FormatTable:
		if rows := ParseTable(content); len(rows) > 0 {
			if err := host.InsertTable(ctx, rows, TableOptions{HasHeaders: true}); err != nil {
				return fmt.Errorf("failed to insert table: %w", err)
			}
			return nil
		}
		fallthrough
	case FormatText:
		if err := host.InsertText(ctx, content, TextOptions{}); err != nil {
			return fmt.Errorf("failed to insert text: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown insert format %q", format)
	}
}
