package service

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed or missing input the caller can correct.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	ErrEmptyCart      = &ValidationError{Code: "empty_cart", Message: "shopping cart is empty"}
	ErrInvalidAddress = &ValidationError{Code: "invalid_address", Message: "delivery address is invalid"}
)

// NotFoundError names an entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ConflictError is a lifecycle rule violation. BlockedBy names the item that
// holds the target in place, when there is one.
type ConflictError struct {
	Kind      string
	ItemID    int64
	ItemName  string
	BlockedBy string
	Reason    string
}

func (e *ConflictError) Error() string {
	var msg string
	switch {
	case e.ItemName != "":
		msg = fmt.Sprintf("%s %q", e.Kind, e.ItemName)
	case e.ItemID != 0:
		msg = fmt.Sprintf("%s %d", e.Kind, e.ItemID)
	default:
		msg = e.Kind
	}
	msg += ": " + e.Reason
	if e.BlockedBy != "" {
		msg += " (" + e.BlockedBy + ")"
	}
	return msg
}

// PersistenceError wraps a store failure. Its message is for logs only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func isBusinessError(err error) bool {
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
		pe *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ce) || errors.As(err, &pe)
}

// persistence wraps err as a PersistenceError unless it already is a typed error.
func persistence(op string, err error) error {
	if err == nil || isBusinessError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
