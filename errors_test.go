package flexbed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdclyburn/flexbed/internal/executor"
)

func TestErrorMessageWithOp(t *testing.T) {
	err := NewError("test-1", CodeReconfigure, errors.New("bus timeout"))
	assert.Equal(t, "flexbed: test-1: Reconfigure: bus timeout", err.Error())
}

func TestErrorMessageWithoutOp(t *testing.T) {
	err := NewError("", CodeIO, errors.New("pin not acquired"))
	assert.Equal(t, "flexbed: IO: pin not acquired", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("bus timeout")
	err := NewError("test-1", CodeReconfigure, cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestErrorIsMatchesByCodeOnly(t *testing.T) {
	a := NewError("test-1", CodeLoad, errors.New("one cause"))
	b := NewError("test-2", CodeLoad, errors.New("a different cause"))
	c := NewError("test-1", CodeExecution, errors.New("one cause"))

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestIsCode(t *testing.T) {
	err := NewError("test-1", CodeNoSuchMeter, errors.New("no meter 'vbus'"))
	assert.True(t, IsCode(err, CodeNoSuchMeter))
	assert.False(t, IsCode(err, CodeDecode))
	assert.False(t, IsCode(errors.New("plain"), CodeDecode))
}

func TestFromFailureConvertsExecutorFailure(t *testing.T) {
	cause := errors.New("reconfigure refused")
	failure := &executor.Failure{Code: executor.CodeReconfigure, Cause: cause}

	converted := FromFailure("test-1", failure)
	var fe *Error
	require.True(t, errors.As(converted, &fe))
	assert.Equal(t, "test-1", fe.Op)
	assert.Equal(t, CodeReconfigure, fe.Code)
	assert.Same(t, cause, fe.Inner)
}

func TestFromFailurePassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("unrelated")
	assert.Same(t, plain, FromFailure("test-1", plain))
}

func TestFromFailureNil(t *testing.T) {
	assert.Nil(t, FromFailure("test-1", nil))
}
