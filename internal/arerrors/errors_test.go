package arerrors_test

import (
	"errors"
	"testing"

	"github.com/cake-lab/arflow-go/internal/arerrors"
	"github.com/stretchr/testify/assert"
)

func TestNewNotFoundCode(t *testing.T) {
	err := arerrors.NewNotFound("session %s not found", "abc")
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
	assert.Equal(t, arerrors.RPCNotFound, arerrors.RPCCode(err))
	assert.Contains(t, err.Error(), "abc")
}

func TestNewInvalidArgumentCode(t *testing.T) {
	err := arerrors.NewInvalidArgument("device already joined")
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))
	assert.Equal(t, arerrors.RPCInvalidArgument, arerrors.RPCCode(err))
}

func TestNewInternalWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := arerrors.NewInternal(cause, "recorder write failed")
	assert.True(t, arerrors.Is(err, arerrors.Internal))
	assert.Equal(t, arerrors.RPCInternal, arerrors.RPCCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestRPCCodeDefaultsToInternalForUnknownError(t *testing.T) {
	assert.Equal(t, arerrors.RPCInternal, arerrors.RPCCode(errors.New("plain")))
}
