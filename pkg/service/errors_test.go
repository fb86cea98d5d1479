package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistenceKeepsBusinessErrors(t *testing.T) {
	nf := &NotFoundError{Entity: "dish", ID: 3}
	assert.Same(t, nf, persistence("op", nf))
	assert.ErrorIs(t, persistence("op", fmt.Errorf("tx: %w", ErrEmptyCart)), ErrEmptyCart)
	assert.NoError(t, persistence("op", nil))

	cause := errors.New("connection reset")
	err := persistence("submit order", cause)
	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "submit order", pe.Op)
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &NotFoundError{Entity: "user", ID: 9}, want: "user 9 not found"},
		{err: ErrEmptyCart, want: "shopping cart is empty"},
		{
			err:  &ConflictError{Kind: "dish", ItemID: 1, ItemName: "rice", BlockedBy: `combo "set"`, Reason: "dish belongs to an on-sale combo"},
			want: `dish "rice": dish belongs to an on-sale combo (combo "set")`,
		},
		{err: &ConflictError{Kind: "category", ItemID: 4, Reason: "category still holds dishes"}, want: "category 4: category still holds dishes"},
		{err: &ConflictError{Kind: "order", Reason: "submission in progress"}, want: "order: submission in progress"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
