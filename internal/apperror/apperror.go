// Package apperror implements the error taxonomy of §7: every error that
// crosses a component boundary is classified into one of a small set of
// categories so the Session Gateway can render a stable `error` event shape
// and the Round Scheduler can decide whether to retry.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

// Category partitions errors by how a caller should react to them.
type Category string

const (
	Input               Category = "input"                // malformed request, validation failure
	Auth                Category = "auth"                 // missing/invalid credentials, ownership violation
	Conflict            Category = "conflict"              // lock held, stale write, duplicate operation
	RateLimited         Category = "rate_limited"          // caller exceeded a configured limit
	Transient           Category = "transient"             // safe to retry with backoff
	ProviderUnavailable Category = "provider_unavailable"  // all providers in a fallback chain failed
	Internal            Category = "internal"              // unexpected/unclassified failure
	Shutdown            Category = "shutdown"              // rejected because the process is draining
)

// Error is the concrete error type carried across component boundaries.
type Error struct {
	Category Category
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a categorized error with no underlying cause.
func New(cat Category, message string) *Error {
	return &Error{Category: cat, Message: message}
}

// Wrap creates a categorized error around an existing cause.
func Wrap(cat Category, cause error, message string) *Error {
	return &Error{Category: cat, Message: message, Cause: cause}
}

// CategoryOf returns the category of err, defaulting to Internal when err is
// not (or does not wrap) an *Error.
func CategoryOf(err error) Category {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return Internal
}

// Is reports whether err is categorized as cat.
func Is(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// modelUnavailableMarkers are substrings providers are expected to surface
// when a requested model name is unknown/decommissioned, as opposed to a
// transport, auth, or quota failure (§4.5 fallback classification).
var modelUnavailableMarkers = []string{
	"model_not_found",
	"model not found",
	"does not exist",
	"no such model",
	"unknown model",
	"unsupported model",
}

// IsModelUnavailable classifies a provider error as "try the next model in
// the fallback chain" (true) versus "stop the chain and surface the error"
// (false) — §4.5 distinguishes model-unavailable from invalid-credentials,
// quota, and transport failures, which must not trigger a silent fallback.
func IsModelUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Category == ProviderUnavailable {
		return true
	}
	if code, ok := providerStatusCode(err); ok && code == http.StatusNotFound {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, marker := range modelUnavailableMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// providerStatusCode unwraps err looking for one of the provider SDKs'
// typed API-error shapes and extracts the HTTP status code they carry,
// per §8 scenario 5 ("primary model to return HTTP 404"). Each of the
// three wired providers exposes the status differently, so each is
// checked in turn with errors.As.
func providerStatusCode(err error) (int, bool) {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode, true
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode, true
	}
	var gerr *genai.APIError
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}

// IsTransient performs the same text-heuristic classification the teacher
// uses for queue redelivery, applied here to decide whether the Round
// Scheduler should retry a failed step instead of failing the round.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, Transient) || Is(err, RateLimited) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporary") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "transient") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "too many requests")
}
