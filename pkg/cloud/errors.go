package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Kind classifies cloud adapter failures
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidParameter Kind = "invalid_parameter"
	KindThrottled        Kind = "throttled"
	KindPermissionDenied Kind = "permission_denied"
	KindTransient        Kind = "transient"
	KindOther            Kind = "other"
)

// Error is the uniform failure type surfaced by the cloud adapter
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloud %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying
func (e *Error) Retryable() bool {
	return e.Kind == KindThrottled || e.Kind == KindTransient
}

// KindOf extracts the taxonomy kind from any error chain
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

// IsNotFound reports whether the error chain carries a NotFound kind
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// wrap classifies a raw SDK error into the taxonomy. An error that already
// carries a Kind passes through untouched so re-wrapping never widens it to
// KindOther.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return KindOther
	}
	code := apiErr.ErrorCode()
	switch {
	case strings.Contains(code, "NotFound"):
		return KindNotFound
	case code == "Throttling" || code == "ThrottlingException" ||
		code == "RequestLimitExceeded" || code == "TooManyRequestsException":
		return KindThrottled
	case code == "UnauthorizedOperation" || code == "AccessDenied" ||
		code == "AccessDeniedException" || code == "AuthFailure":
		return KindPermissionDenied
	case strings.HasPrefix(code, "InvalidParameter") ||
		strings.Contains(code, "Malformed") || code == "ValidationError":
		return KindInvalidParameter
	case code == "InternalError" || code == "ServiceUnavailable" ||
		code == "RequestTimeout" || code == "InternalFailure":
		return KindTransient
	default:
		return KindOther
	}
}
