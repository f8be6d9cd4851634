package hostbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OfficeChat/internal/office"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTaskPane records requests and answers them like an Excel task pane.
type fakeTaskPane struct {
	mu       sync.Mutex
	requests []json.RawMessage
	methods  []string
}

func (f *fakeTaskPane) handle(raw []byte) Response {
	var req struct {
		ID     int             `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(raw, &req)

	f.mu.Lock()
	f.methods = append(f.methods, req.Method)
	f.requests = append(f.requests, req.Params)
	f.mu.Unlock()

	switch req.Method {
	case MethodInitialize:
		return Response{JSONRPC: "2.0", ID: req.ID, Result: InitializeResult{Application: "Excel", Version: "16.0"}}
	case MethodInsertTable:
		var p InsertTableParams
		_ = json.Unmarshal(req.Params, &p)
		if len(p.Rows) == 0 {
			return Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32602, Message: "no rows"}}
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]bool{"ok": true}}
	default:
		return Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]bool{"ok": true}}
	}
}

func (f *fakeTaskPane) lastParams(t *testing.T, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(t, json.Unmarshal(f.requests[len(f.requests)-1], v))
}

func (f *fakeTaskPane) wsHandler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			resp := f.handle(raw)
			// A notification first, which the client must skip.
			if err := conn.WriteJSON(Response{JSONRPC: "2.0", ID: -1}); err != nil {
				return
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

func (f *fakeTaskPane) httpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/rpc" {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(f.handle(raw))
}

func exerciseHost(t *testing.T, h *Host, pane *fakeTaskPane) {
	t.Helper()
	ctx := context.Background()
	assert.Equal(t, "Excel", h.Application())

	require.NoError(t, h.InsertText(ctx, "hello", office.TextOptions{Worksheet: "Sheet1", Range: "B2"}))
	var text InsertTextParams
	pane.lastParams(t, &text)
	assert.Equal(t, InsertTextParams{Text: "hello", Worksheet: "Sheet1", Range: "B2"}, text)

	require.NoError(t, office.Insert(ctx, h, "| a | b |\n| 1 | 2 |", office.FormatTable))
	var table InsertTableParams
	pane.lastParams(t, &table)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, table.Rows)
	assert.True(t, table.HasHeaders)

	err := h.InsertTable(ctx, nil, office.TableOptions{})
	assert.ErrorContains(t, err, "no rows")

	require.NoError(t, h.InsertTextReplacingSelection(ctx, "swap"))
	pane.mu.Lock()
	defer pane.mu.Unlock()
	assert.Equal(t, []string{MethodInitialize, MethodInsertText, MethodInsertTable, MethodInsertTable, MethodReplaceSelection}, pane.methods)
}

func TestWebSocketHost(t *testing.T) {
	pane := &fakeTaskPane{}
	srv := httptest.NewServer(pane.wsHandler(t))
	defer srv.Close()

	h, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), quietLogger())
	require.NoError(t, err)
	exerciseHost(t, h, pane)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "closing twice is fine")
	assert.Error(t, h.InsertText(context.Background(), "late", office.TextOptions{}))
}

func TestHTTPHost(t *testing.T) {
	pane := &fakeTaskPane{}
	srv := httptest.NewServer(http.HandlerFunc(pane.httpHandler))
	defer srv.Close()

	h, err := Dial(context.Background(), srv.URL+"/", quietLogger())
	require.NoError(t, err)
	exerciseHost(t, h, pane)
	require.NoError(t, h.Close())
}

func TestDialErrors(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://example.com", quietLogger())
	assert.ErrorContains(t, err, "unsupported bridge scheme")

	_, err = Dial(context.Background(), "ws://example.com", nil)
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err = Dial(context.Background(), srv.URL, quietLogger())
	assert.ErrorContains(t, err, "HTTP error 500")
}
