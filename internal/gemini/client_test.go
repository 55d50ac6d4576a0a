// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "AIza-test-key-0123456789"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(testKey).WithBaseURL(srv.URL).WithHTTPClient(srv.Client()).WithLogger(quietLogger())
}

func sampleRequest() *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents:          []Content{NewTextContent(RoleUser, "Begin the tale.")},
		SystemInstruction: &Content{Parts: []Part{{Text: "You are a storyteller."}}},
		SafetySettings: []SafetySetting{
			{Category: HarmCategoryHarassment, Threshold: BlockOnlyHigh},
		},
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_Events(t *testing.T) {
	input := "data: {\"a\":1}\n\n" +
		": keep-alive comment\n" +
		"event: update\r\ndata: line1\r\ndata: line2\r\n\r\n" +
		"data: tail-without-newline"

	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "", typ)
	assert.Equal(t, `{"a":1}`, string(data))

	typ, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "update", typ)
	assert.Equal(t, "line1\nline2", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail-without-newline", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReader_EventSizeLimit(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		input := "data: " + strings.Repeat("x", MaxEventSize+1) + "\n\n"
		_, _, err := NewSSEReader(strings.NewReader(input)).ReadEvent()
		assert.ErrorIs(t, err, ErrEventTooLarge)
	})

	t.Run("many lines", func(t *testing.T) {
		line := "data: " + strings.Repeat("y", 1024) + "\n"
		input := strings.Repeat(line, MaxEventSize/1024+1) + "\n"
		_, _, err := NewSSEReader(strings.NewReader(input)).ReadEvent()
		assert.ErrorIs(t, err, ErrEventTooLarge)
	})

	t.Run("at limit", func(t *testing.T) {
		payload := strings.Repeat("z", MaxEventSize)
		_, data, err := NewSSEReader(strings.NewReader("data: " + payload + "\r\n\r\n")).ReadEvent()
		require.NoError(t, err)
		assert.Len(t, data, MaxEventSize)
	})
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestStreamGenerateContent_Chunks(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-3-flash-preview:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, testKey, r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"planning","thought":true}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Once "}]}}]}`,
			`not json`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"upon a time."}]},"finishReason":"STOP"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\r\n\r\n", c)
			w.(http.Flusher).Flush()
		}
	})

	var texts []string
	err := client.StreamGenerateContent(context.Background(), "gemini-3-flash-preview", sampleRequest(), func(c *GenerateContentResponse) {
		texts = append(texts, c.Text())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "Once ", "upon a time."}, texts)

	require.Contains(t, gotBody, "systemInstruction")
	require.Contains(t, gotBody, "safetySettings")
	assert.NotContains(t, gotBody, "tools")
	assert.NotContains(t, gotBody, "generationConfig")
}

func TestStreamGenerateContent_MalformedChunkLogged(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"still here"}]}}]}`+"\n\n")
	})
	client.WithLogger(log)

	var texts []string
	err := client.StreamGenerateContent(context.Background(), "gemini-3-flash-preview", sampleRequest(), func(c *GenerateContentResponse) {
		texts = append(texts, c.Text())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"still here"}, texts)

	var skipped *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "skipping malformed stream chunk" {
			skipped = e
		}
	}
	require.NotNil(t, skipped)
	assert.Equal(t, logrus.DebugLevel, skipped.Level)
	assert.Equal(t, len(`{"candidates":[`), skipped.Data["bytes"])
	assert.NotNil(t, skipped.Data[logrus.ErrorKey])
}

func TestStreamGenerateContent_OversizeEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: \"%s\"\n\n", strings.Repeat("a", MaxEventSize+10))
	})

	err := client.StreamGenerateContent(context.Background(), "gemini-3-flash-preview", sampleRequest(), func(*GenerateContentResponse) {
		t.Fatal("callback must not run for an oversize event")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventTooLarge)
}

func TestStreamGenerateContent_QuotaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	})

	err := client.StreamGenerateContent(context.Background(), "gemini-3-pro-preview", sampleRequest(), func(*GenerateContentResponse) {
		t.Fatal("callback must not run on error")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.HTTPStatus)
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)
	assert.Contains(t, apiErr.Error(), "Resource has been exhausted")
}

func TestStreamGenerateContent_ErrorChunk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":503,\"message\":\"overloaded\",\"status\":\"UNAVAILABLE\"}}\n\n")
	})

	var n int
	err := client.StreamGenerateContent(context.Background(), "m", sampleRequest(), func(*GenerateContentResponse) { n++ })
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, errors.Is(err, ErrRateLimited))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.HTTPStatus)
}

func TestStreamGenerateContent_Cancel(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi\"}]}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.StreamGenerateContent(ctx, "m", sampleRequest(), func(*GenerateContentResponse) { cancel() })
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestStreamGenerateContent_NotConfigured(t *testing.T) {
	err := NewClient("  ").StreamGenerateContent(context.Background(), "m", sampleRequest(), func(*GenerateContentResponse) {})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// =============================================================================
// ONE-SHOT TESTS
// =============================================================================

func TestGenerateContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-flash-lite-latest:generateContent"))
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  The Salt Crown \n"}]},"finishReason":"STOP"}]}`))
	})

	resp, err := client.GenerateContent(context.Background(), "gemini-flash-lite-latest", sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "  The Salt Crown \n", resp.Text())
	assert.Equal(t, "STOP", resp.FinishReason())
}

func TestGenerateContent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"quota", 429, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, ErrRateLimited},
		{"auth", 403, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`, ErrAuthFailed},
		{"not found", 404, `{"error":{"code":404,"message":"models/x is not found","status":"NOT_FOUND"}}`, ErrModelNotFound},
		{"plain body", 429, `Too Many Requests`, ErrRateLimited},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := client.GenerateContent(context.Background(), "m", sampleRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestGenerateContent_Malformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [`))
	})
	_, err := client.GenerateContent(context.Background(), "m", sampleRequest())
	assert.Error(t, err)
}

// =============================================================================
// KEY HANDLING TESTS
// =============================================================================

func TestAPIKeyMasked(t *testing.T) {
	c := NewClient(testKey)
	masked := c.APIKeyMasked()
	assert.NotContains(t, masked, testKey[:6])
	assert.Contains(t, masked, c.KeyFingerprint())
	assert.Len(t, c.KeyFingerprint(), 8)

	assert.Equal(t, "[not set]", NewClient("").APIKeyMasked())
}

func TestRequestHelpers(t *testing.T) {
	req := sampleRequest()
	assert.False(t, req.HasSearch())
	assert.Zero(t, req.ThinkingBudget())

	req.Tools = []Tool{{GoogleSearch: &GoogleSearch{}}}
	req.GenerationConfig = &GenerationConfig{ThinkingConfig: &ThinkingConfig{ThinkingBudget: 4096}}
	assert.True(t, req.HasSearch())
	assert.Equal(t, 4096, req.ThinkingBudget())

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tools":[{"googleSearch":{}}]`)
	assert.Contains(t, string(data), `"thinkingConfig":{"thinkingBudget":4096}`)
}
