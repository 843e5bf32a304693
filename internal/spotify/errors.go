package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
)

// Kind discriminates catalog error classes. The retry loop and the pipeline
// branch on the discriminant, never on error strings.
type Kind int

const (
	// KindTransient marks retryable failures (429, 5xx, network, read
	// timeout). Callers only see it when retries were skipped entirely.
	KindTransient Kind = iota
	// KindPermanent marks non-retryable failures and exhausted retries.
	KindPermanent
	// KindAuth marks 401/403 responses; re-authorization may be required.
	KindAuth
	// KindTimeout marks an exceeded per-call wall-clock budget.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// APIError is the typed result of a failed catalog call.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("catalog %s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("catalog %s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps an error from the underlying SDK into the taxonomy. The retry
// transport has already consumed the retry budget, so retryable statuses that
// surface here are reported as exhausted.
func classify(op string, err error) *APIError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%s: timeout: per-call budget exceeded", op),
			Err:     err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{
			Kind:    KindPermanent,
			Message: fmt.Sprintf("%s: canceled", op),
			Err:     err,
		}
	}

	var serr spotify.Error
	if errors.As(err, &serr) {
		switch {
		case serr.Status == http.StatusUnauthorized || serr.Status == http.StatusForbidden:
			return &APIError{
				Kind:    KindAuth,
				Status:  serr.Status,
				Message: fmt.Sprintf("%s: %s (re-authorization may be required)", op, serr.Message),
				Err:     err,
			}
		case serr.Status == http.StatusTooManyRequests || serr.Status >= http.StatusInternalServerError:
			return &APIError{
				Kind:    KindPermanent,
				Status:  serr.Status,
				Message: fmt.Sprintf("%s: retries exhausted: %s", op, serr.Message),
				Err:     err,
			}
		default:
			return &APIError{
				Kind:    KindPermanent,
				Status:  serr.Status,
				Message: fmt.Sprintf("%s: %s", op, serr.Message),
				Err:     err,
			}
		}
	}

	// Network-level failures that survived the retry transport.
	return &APIError{
		Kind:    KindPermanent,
		Message: fmt.Sprintf("%s: %v", op, err),
		Err:     err,
	}
}
