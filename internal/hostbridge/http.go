package hostbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// httpCaller posts each request to {baseURL}/rpc.
type httpCaller struct {
	baseURL    string
	httpClient *http.Client
	reqID      atomic.Int32
}

func newHTTPCaller(baseURL string) *httpCaller {
	return &httpCaller{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpCaller) call(ctx context.Context, method string, params, result any) error {
	request := Request{
		JSONRPC: "2.0",
		ID:      int(c.reqID.Add(1)),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var response Response
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return decodeResult(response, result)
}

func (c *httpCaller) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
