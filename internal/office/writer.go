package office

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// WriterHost renders insertions to a terminal or file. It stands in for a
// spreadsheet when the chat runs outside an Office host.
type WriterHost struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterHost returns a host writing to w.
func NewWriterHost(w io.Writer) *WriterHost {
	return &WriterHost{w: w}
}

func (h *WriterHost) InsertText(_ context.Context, text string, opts TextOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cell := opts.Range
	if cell == "" {
		cell = "A1"
	}
	if opts.Worksheet != "" {
		cell = opts.Worksheet + "!" + cell
	}
	_, err := fmt.Fprintf(h.w, "[%s]\n%s\n", cell, text)
	return err
}

func (h *WriterHost) InsertTextReplacingSelection(_ context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "[selection]\n%s\n", text)
	return err
}

func (h *WriterHost) InsertTable(_ context.Context, rows [][]string, opts TableOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("table has no rows")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := opts.StartCell
	if start == "" {
		start = "A1"
	}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", start)
	for r, row := range rows {
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell)
			if i < cols-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
			}
		}
		b.WriteString("\n")
		if r == 0 && opts.HasHeaders {
			for i, w := range widths {
				if i > 0 {
					b.WriteString("-+-")
				}
				b.WriteString(strings.Repeat("-", w))
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}
