package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", InvalidCount(0), ErrInvalidCount},
		{"wrapped", fmt.Errorf("draw: %w", InsufficientPool(3, 2)), ErrInsufficientPool},
		{"plain", stderrors.New("boom"), ErrInternal},
		{"nil", nil, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", InvalidWeight(11))
	assert.True(t, Is(err, ErrInvalidWeight))
	assert.False(t, Is(err, ErrInvalidCount))
	assert.False(t, Is(nil, ErrInvalidWeight))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := IOFailure(fs.ErrPermission, "write state")
	assert.Equal(t, "write state: permission denied", err.Error())
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "draw_already_active", ErrDrawAlreadyActive.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
