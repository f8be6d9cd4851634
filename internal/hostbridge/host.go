// Package hostbridge forwards document insertions to an Office task pane over
// JSON-RPC, either on a WebSocket or with plain HTTP posts.
package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"OfficeChat/internal/office"
)

const clientName = "officechat"

// caller sends one JSON-RPC request and decodes its result.
type caller interface {
	call(ctx context.Context, method string, params, result any) error
	Close() error
}

// Host implements office.DocumentHost on top of a JSON-RPC connection.
type Host struct {
	conn        caller
	logger      *slog.Logger
	application string
}

var _ office.DocumentHost = (*Host)(nil)

// Dial connects to the bridge at rawURL (ws, wss, http or https) and performs
// the initialize handshake.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}

	var conn caller
	switch u.Scheme {
	case "ws", "wss":
		conn, err = dialWebSocket(ctx, rawURL, logger)
	case "http", "https":
		conn = newHTTPCaller(rawURL)
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	h := &Host{conn: conn, logger: logger}
	if err := h.initialize(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return h, nil
}

func (h *Host) initialize(ctx context.Context) error {
	params := InitializeParams{ClientInfo: ClientInfo{Name: clientName, Version: "1.1.0"}}
	var result InitializeResult
	if err := h.conn.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	h.application = result.Application
	h.logger.Info("document host connected", "application", result.Application, "version", result.Version)
	return nil
}

// Application names the Office application on the other end.
func (h *Host) Application() string {
	return h.application
}

func (h *Host) InsertText(ctx context.Context, text string, opts office.TextOptions) error {
	params := InsertTextParams{Text: text, Worksheet: opts.Worksheet, Range: opts.Range}
	if err := h.conn.call(ctx, MethodInsertText, params, nil); err != nil {
		return fmt.Errorf("insert text failed: %w", err)
	}
	return nil
}

func (h *Host) InsertTable(ctx context.Context, rows [][]string, opts office.TableOptions) error {
	params := InsertTableParams{Rows: rows, StartCell: opts.StartCell, HasHeaders: opts.HasHeaders}
	if err := h.conn.call(ctx, MethodInsertTable, params, nil); err != nil {
		return fmt.Errorf("insert table failed: %w", err)
	}
	return nil
}

func (h *Host) InsertTextReplacingSelection(ctx context.Context, text string) error {
	if err := h.conn.call(ctx, MethodReplaceSelection, ReplaceSelectionParams{Text: text}, nil); err != nil {
		return fmt.Errorf("replace selection failed: %w", err)
	}
	return nil
}

// Close disconnects from the host.
func (h *Host) Close() error {
	return h.conn.Close()
}

// decodeResult converts a generic response result into result.
func decodeResult(resp Response, result any) error {
	if resp.Error != nil {
		return fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if result == nil {
		return nil
	}
	b, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(b, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
