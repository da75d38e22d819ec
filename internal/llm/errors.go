package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// APIError represents an HTTP error from the chat gateway.
type APIError struct {
	// StatusCode is the HTTP status of the failed request.
	StatusCode int
	// Body is the raw response body, used for retry hint extraction.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api error: status %d: %s", e.StatusCode, e.Body)
}

// ErrorKind discriminates transport failures at the retry boundary.
type ErrorKind int

const (
	// KindNonRetryable covers every failure that must propagate as-is.
	KindNonRetryable ErrorKind = iota
	// KindRateLimited marks an HTTP 429 equivalent worth backing off for.
	KindRateLimited
)

// Retryable reports whether a fresh attempt may be made for this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited
}

// Classify maps a transport error to its kind. Only a structured API error
// with status 429 counts as rate limited.
func Classify(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return KindRateLimited
	}
	return KindNonRetryable
}

// retryInfoType tags the structured retry detail in error payloads.
const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

// retryTextPattern extracts delays from free-text error messages such as
// "Please retry in 3.5s" or "retry in 250ms".
var retryTextPattern = regexp.MustCompile(`(?i)retry in ([0-9.]+)\s*(ms|s)`)

// RetryHint extracts a server-supplied retry delay from an error.
// The structured RetryInfo detail wins over the free-text fallback.
func RetryHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	if delay, ok := structuredRetryDelay(apiErr.Body); ok {
		return delay, true
	}
	return textRetryDelay(err.Error())
}

// structuredRetryDelay parses a RetryInfo detail from a JSON error body.
func structuredRetryDelay(body string) (time.Duration, bool) {
	var payload struct {
		Error struct {
			Details []map[string]any `json:"details"`
		} `json:"error"`
		Details []map[string]any `json:"details"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return 0, false
	}

	details := payload.Error.Details
	if len(details) == 0 {
		details = payload.Details
	}
	for _, detail := range details {
		if detail["@type"] != retryInfoType {
			continue
		}
		delayText, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if delay, err := time.ParseDuration(delayText); err == nil && delay >= 0 {
			return delay, true
		}
	}
	return 0, false
}

// textRetryDelay regex-extracts a delay from a free-text error message.
func textRetryDelay(message string) (time.Duration, bool) {
	match := retryTextPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(match[2], "ms") {
		amount /= 1000.0
	}
	return time.Duration(amount * float64(time.Second)), true
}
