package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// readStream consumes `data:` frames until the sentinel or EOF. Frames are
// split on '\n' only, so a UTF-8 sequence cut across two network reads is
// reassembled by the buffered reader before it is decoded.
func (c *Client) readStream(ctx context.Context, body io.Reader, onProgress func(string)) (string, error) {
	reader := bufio.NewReader(body)
	var full strings.Builder

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			delta, done := c.parseFrame(line)
			if done {
				return full.String(), nil
			}
			if delta != "" {
				// No delta may be delivered once the caller has given up.
				if err := ctx.Err(); err != nil {
					return full.String(), networkError("stream aborted", err)
				}
				full.WriteString(delta)
				if c.deltaCount != nil {
					c.deltaCount.Add(ctx, 1)
				}
				if onProgress != nil {
					onProgress(delta)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return full.String(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}
			return full.String(), networkError("stream interrupted", readErr)
		}
	}
}

// parseFrame decodes one line. Lines that are not data frames, and frames
// that are not valid JSON, yield no delta.
func (c *Client) parseFrame(line string) (delta string, done bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	data := strings.TrimSpace(line[len(dataPrefix):])
	if data == doneSentinel {
		return "", true
	}
	if data == "" {
		return "", false
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		c.logger.Debug("skipping malformed stream frame", "error", err, "bytes", len(data))
		return "", false
	}
	return chunk.Content(), false
}
