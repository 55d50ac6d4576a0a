// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Configuration constants for the Gemini API.
const (
	// DefaultBaseURL is the base URL of the generative language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// APIVersion is the path segment for the API version.
	APIVersion = "v1beta"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum accepted non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBodySize bounds how much of an error body is read.
	maxErrorBodySize = 64 * 1024

	userAgent = "inkweaver/1.0"
)

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

var (
	// Shared clients pool connections across Client values.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

// Error variables for common API failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("Gemini API key not configured")

	// ErrAuthFailed indicates the key was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates a quota or rate limit was hit.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the model id is unknown to the API.
	ErrModelNotFound = errors.New("model not found")

	// ErrEmptyResponse indicates a response carried no text because the
	// prompt or the reply was blocked.
	ErrEmptyResponse = errors.New("empty response")
)

// =============================================================================
// ERROR TYPE
// =============================================================================

// apiErrorBody is the JSON error object returned by the API.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// APIError is an error response from the API.
type APIError struct {
	// HTTPStatus is the HTTP status code, or the code from the error body
	// when the error arrived inside a stream.
	HTTPStatus int
	// Status is the canonical status string, e.g. RESOURCE_EXHAUSTED.
	Status  string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("Gemini error [%s] (HTTP %d): %s", e.Status, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("Gemini error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// Is maps API errors onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.HTTPStatus == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
	case ErrAuthFailed:
		return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden
	case ErrModelNotFound:
		return e.HTTPStatus == http.StatusNotFound
	}
	return false
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Gemini REST API. It is safe for concurrent use.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	log          *logrus.Logger
}

// NewClient creates a client for the given API key.
// An empty key yields a client whose calls fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultBaseURL,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		log:          logrus.StandardLogger(),
	}
}

// WithBaseURL sets a custom base URL (used by tests and proxies).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   timeout,
	}
	return c
}

// WithHTTPClient replaces both the one-shot and the streaming HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithRateLimit caps outgoing requests per minute. Zero or less disables it.
func (c *Client) WithRateLimit(requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	return c
}

// WithLogger sets the logger used for request logging.
func (c *Client) WithLogger(l *logrus.Logger) *Client {
	if l != nil {
		c.log = l
	}
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a display form of the key that exposes no part of it.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.KeyFingerprint())
}

// KeyFingerprint returns the first 8 hex characters of the key's SHA-256.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// REQUESTS
// =============================================================================

// endpoint builds the URL for a model method, e.g. "generateContent".
func (c *Client) endpoint(model, method string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, APIVersion, url.PathEscape(model), method)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// newRequest builds an authenticated POST with a JSON body.
func (c *Client) newRequest(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// do waits for the limiter, sends the request and logs the exchange.
// Headers and bodies are never logged.
func (c *Client) do(ctx context.Context, hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	entry := c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
		"key":    c.KeyFingerprint(),
	})
	entry.Debug("gemini request")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		entry.WithError(err).Debug("gemini request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	entry.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("gemini response")
	return resp, nil
}

// GenerateContent performs a one-shot generateContent call.
func (c *Client) GenerateContent(ctx context.Context, model string, body *GenerateContentRequest) (*GenerateContentResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req, err := c.newRequest(ctx, c.endpoint(model, "generateContent", nil), body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, data)
	}

	var out GenerateContentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return nil, out.Error.toAPIError(resp.StatusCode)
	}
	return &out, nil
}

// readResponse reads the body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response into an *APIError.
// The message is kept verbatim so callers can classify it.
func handleErrorResponse(statusCode int, body []byte) error {
	var envelope struct {
		Error *apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.toAPIError(statusCode)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &APIError{HTTPStatus: statusCode, Message: msg}
}

func (b *apiErrorBody) toAPIError(httpStatus int) *APIError {
	status := httpStatus
	if b.Code != 0 {
		status = b.Code
	}
	return &APIError{HTTPStatus: status, Status: b.Status, Message: b.Message}
}
