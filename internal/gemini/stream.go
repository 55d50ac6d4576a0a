// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// =============================================================================
// SSE READER
// =============================================================================

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// ErrEventTooLarge is returned when an event exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("sse event too large")

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, 4096)}
}

// maxLineSize leaves room for the field name and line ending.
const maxLineSize = MaxEventSize + 64

// readLine reads one line without letting it grow past maxLineSize bytes.
func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		if len(line)+len(frag) > maxLineSize {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrEventTooLarge, MaxEventSize)
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

// ReadEvent reads the next event and returns its type and data.
// Multiple data lines are joined with "\n". Returns io.EOF at end of stream.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		eof := err != nil

		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			if eof {
				return "", nil, io.EOF
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			// A single leading space belongs to the field separator.
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if len(dataLines) > 0 {
				size++
			}
			size += len(data)
			if size > MaxEventSize {
				return "", nil, fmt.Errorf("%w: more than %d bytes", ErrEventTooLarge, MaxEventSize)
			}
			dataLines = append(dataLines, data)
		}
		// id:, retry: and ":" comments are ignored.

		if eof {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}
	}
}

// =============================================================================
// STREAMING GENERATION
// =============================================================================

// StreamCallback receives each decoded chunk in arrival order.
type StreamCallback func(chunk *GenerateContentResponse)

// StreamGenerateContent performs a streamGenerateContent call and invokes
// callback for each chunk. It returns when the stream ends, an error chunk
// arrives, or ctx is cancelled; cancelling closes the connection.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, body *GenerateContentRequest, callback StreamCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	req, err := c.newRequest(ctx, c.endpoint(model, "streamGenerateContent", url.Values{"alt": {"sse"}}), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(ctx, c.streamClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return handleErrorResponse(resp.StatusCode, data)
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads SSE events until EOF and decodes each as a chunk.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("stream read failed: %w", err)
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk GenerateContentResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.log.WithError(err).WithField("bytes", len(data)).Debug("skipping malformed stream chunk")
			continue
		}
		if chunk.Error != nil {
			return chunk.Error.toAPIError(http.StatusOK)
		}

		callback(&chunk)
	}
}
