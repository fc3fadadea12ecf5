package cloud

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"instance not found", &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound"}, KindNotFound},
		{"ami not found", &smithy.GenericAPIError{Code: "InvalidAMIID.NotFound"}, KindNotFound},
		{"request limit", &smithy.GenericAPIError{Code: "RequestLimitExceeded"}, KindThrottled},
		{"throttling", &smithy.GenericAPIError{Code: "Throttling"}, KindThrottled},
		{"unauthorized", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, KindPermissionDenied},
		{"bad parameter", &smithy.GenericAPIError{Code: "InvalidParameterValue"}, KindInvalidParameter},
		{"internal error", &smithy.GenericAPIError{Code: "InternalError"}, KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"plain error", errors.New("boom"), KindOther},
		{"unknown code", &smithy.GenericAPIError{Code: "SomethingElse"}, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, classify(tt.err))
		})
	}
}

func TestWrapPreservesChain(t *testing.T) {
	raw := &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "slow down"}
	err := wrap("RunInstance", raw)

	var ce *Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, KindThrottled, ce.Kind)
	assert.Equal(t, "RunInstance", ce.Op)
	assert.True(t, ce.Retryable())

	var apiErr smithy.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, wrap("StopInstance", nil))
}

// A classified error emitted inside an adapter call must keep its kind when
// the call wrapper classifies the result again.
func TestWrapPassesThroughClassifiedErrors(t *testing.T) {
	inner := &Error{Kind: KindNotFound, Op: "DescribeStatus", Err: errors.New("no status for i-0gone")}
	err := wrap("DescribeStatus", inner)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))

	wrapped := fmt.Errorf("attempt 3: %w", inner)
	assert.Equal(t, KindNotFound, KindOf(wrap("DescribeStatus", wrapped)))
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindNotFound, Op: "DescribeStatus", Err: errors.New("gone")})
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, KindOther, KindOf(errors.New("x")))
}
