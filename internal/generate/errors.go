// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/inkweaver/internal/gemini"
)

// ErrAllVariantsExhausted is returned when every permitted variant failed
// with a quota error.
var ErrAllVariantsExhausted = errors.New("all models failed or quota exceeded on all available models")

// quotaMarkers are substrings that identify quota failures in error text.
var quotaMarkers = []string{
	"429",
	"Quota",
	"quota",
	"Resource has been exhausted",
	"RESOURCE_EXHAUSTED",
}

// IsQuotaError reports whether err is a quota or rate-limit failure: an
// HTTP 429, or an error whose text carries one of the quota markers.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gemini.ErrRateLimited) {
		return true
	}
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// safetyFinishReasons end a candidate without text for content-policy reasons.
var safetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

// blockedError returns the error for a reply that produced no text because
// the prompt or the candidate was blocked, or nil otherwise. It wraps
// gemini.ErrEmptyResponse and is never a quota error.
func blockedError(blockReason, finishReason string) error {
	if blockReason != "" {
		return fmt.Errorf("%w: prompt blocked (%s)", gemini.ErrEmptyResponse, blockReason)
	}
	if safetyFinishReasons[finishReason] {
		return fmt.Errorf("%w: reply blocked (%s)", gemini.ErrEmptyResponse, finishReason)
	}
	return nil
}
