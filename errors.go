package counsel

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Stable model-error codes surfaced to callers in terminal error events.
const (
	CodeTimeout     = 1001
	CodeAuth        = 1002
	CodeRateLimit   = 1003
	CodeUnavailable = 1099
)

// User-safe messages paired with the codes above. Provider-internal detail
// never appears here; it stays in the wrapped cause, visible only to logs.
const (
	msgTimeout     = "服务响应超时，请稍后重试"
	msgAuth        = "服务配置错误，请联系管理员"
	msgRateLimit   = "请求过于频繁，请稍后重试"
	msgUnavailable = "服务暂时不可用，请稍后重试"
)

// ModelError is a classified model-call failure carrying a stable code and a
// safe user-facing message. The transport-level cause, when present, is
// reachable through errors.As / errors.Is for retry middleware and logging.
type ModelError struct {
	Code    int
	Message string
	cause   error
}

func (e *ModelError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("model error %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("model error %d: %s", e.Code, e.Message)
}

func (e *ModelError) Unwrap() error { return e.cause }

// Retryable reports whether the failure class is worth retrying.
func (e *ModelError) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeRateLimit
}

// NewTimeoutError classifies a transport timeout (code 1001).
func NewTimeoutError(cause error) *ModelError {
	return &ModelError{Code: CodeTimeout, Message: msgTimeout, cause: cause}
}

// NewAuthError classifies an HTTP 401 (code 1002). Non-retryable; the safe
// message deliberately says nothing about keys or credentials.
func NewAuthError(cause error) *ModelError {
	return &ModelError{Code: CodeAuth, Message: msgAuth, cause: cause}
}

// NewRateLimitError classifies an HTTP 429 (code 1003).
func NewRateLimitError(cause error) *ModelError {
	return &ModelError{Code: CodeRateLimit, Message: msgRateLimit, cause: cause}
}

// NewUnavailableError classifies connection failures, 5xx responses, and
// malformed payloads (code 1099). An empty msg uses the default safe message.
func NewUnavailableError(msg string, cause error) *ModelError {
	if msg == "" {
		msg = msgUnavailable
	}
	return &ModelError{Code: CodeUnavailable, Message: msg, cause: cause}
}

// AsModelError normalizes any error into a ModelError: classified errors pass
// through, everything else becomes a generic unavailable error so raw detail
// never reaches the event stream.
func AsModelError(err error) *ModelError {
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	return &ModelError{Code: CodeUnavailable, Message: msgUnavailable, cause: err}
}

// ErrHTTP is a raw provider HTTP failure. It is usually wrapped inside a
// ModelError; retry middleware unwraps it to inspect status and Retry-After.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value, either delay
// seconds or an HTTP date. Returns 0 when absent or unparsable.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
