package ragerr_test

import (
	"errors"
	"testing"

	"github.com/hsn0918/rag/internal/ragerr"
	"github.com/stretchr/testify/assert"
)

func TestNewAndIs(t *testing.T) {
	err := ragerr.New(ragerr.DependencyTransient, errors.New("connection reset"))
	assert.True(t, ragerr.Is(err, ragerr.DependencyTransient))
	assert.False(t, ragerr.Is(err, ragerr.InputInvalid))
}

func TestKindOf_UnclassifiedDefaultsToCatastrophic(t *testing.T) {
	assert.Equal(t, ragerr.Catastrophic, ragerr.KindOf(errors.New("plain error")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ragerr.New(ragerr.InternalInvariant, cause)
	assert.ErrorIs(t, err, cause)
}

func TestNew_NilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, ragerr.New(ragerr.Catastrophic, nil))
}
