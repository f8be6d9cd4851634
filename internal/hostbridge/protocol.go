package hostbridge

// JSON-RPC 2.0 messages exchanged with the document host.

// Request is a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string `json:"jsonrpc"` // Always "2.0"
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	MethodInitialize       = "initialize"
	MethodInsertText       = "document/insertText"
	MethodInsertTable      = "document/insertTable"
	MethodReplaceSelection = "document/replaceSelection"
)

// InitializeParams identifies this client to the host.
type InitializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

// ClientInfo contains client identification
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult names the Office application behind the bridge.
type InitializeResult struct {
	Application string `json:"application"` // "Excel", "Word", ...
	Version     string `json:"version"`
}

// InsertTextParams are the params of document/insertText.
type InsertTextParams struct {
	Text      string `json:"text"`
	Worksheet string `json:"worksheet,omitempty"`
	Range     string `json:"range,omitempty"`
}

// InsertTableParams are the params of document/insertTable.
type InsertTableParams struct {
	Rows       [][]string `json:"rows"`
	StartCell  string     `json:"startCell,omitempty"`
	HasHeaders bool       `json:"hasHeaders"`
}

// ReplaceSelectionParams are the params of document/replaceSelection.
type ReplaceSelectionParams struct {
	Text string `json:"text"`
}
