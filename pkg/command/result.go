package command

import "fmt"

// Status is the uniform outcome classification of a command
type Status string

const (
	StatusOK               Status = "ok"
	StatusBadRequest       Status = "bad_request"
	StatusNotFound         Status = "not_found"
	StatusConflict         Status = "conflict"
	StatusFailedDependency Status = "failed_dependency"
	StatusInternal         Status = "internal"
)

// Result wraps every handler outcome
type Result struct {
	Status    Status      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// OK builds a successful result
func OK(data interface{}) Result {
	return Result{Status: StatusOK, Data: data}
}

// BadRequest builds a validation failure result
func BadRequest(format string, args ...interface{}) Result {
	return Result{Status: StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a missing-aggregate result
func NotFound(format string, args ...interface{}) Result {
	return Result{Status: StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an invariant-violation result
func Conflict(format string, args ...interface{}) Result {
	return Result{Status: StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// FailedDependency builds a recoverable external-failure result
func FailedDependency(kind string, format string, args ...interface{}) Result {
	return Result{Status: StatusFailedDependency, ErrorKind: kind, Message: fmt.Sprintf(format, args...)}
}

// Internal builds an unexpected-failure result
func Internal(err error) Result {
	return Result{Status: StatusInternal, ErrorKind: "internal", Message: err.Error()}
}

// Failed reports whether the result is anything but OK
func (r Result) Failed() bool {
	return r.Status != StatusOK
}
