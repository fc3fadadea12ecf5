package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// Kind classifies Service API failures
type Kind string

const (
	KindTimeout  Kind = "timeout"
	KindConnect  Kind = "connect"
	KindAuth     Kind = "auth"
	KindNotFound Kind = "not_found"
	KindProtocol Kind = "protocol"
	KindOther    Kind = "other"
)

// IntegrationError is the uniform failure type surfaced by the Service client
type IntegrationError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// KindOf extracts the taxonomy kind from any error chain
func KindOf(err error) Kind {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindOther
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnect
	}
	return KindOther
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return err
	}
	return &IntegrationError{Kind: classify(err), Op: op, Err: err}
}
