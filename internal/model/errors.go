package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown account or instrument.
type NotFoundError struct {
	Entity string // "account" or "instrument"
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InsufficientFundsError is returned when a buy costs more than the balance.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		FormatMoney(e.Required), FormatMoney(e.Available))
}

// InsufficientHoldingsError is returned when a sell exceeds the owned quantity.
type InsufficientHoldingsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient stock quantity: required %d, available %d", e.Required, e.Available)
}

// MissingPriceError is returned by aggregation when an instrument with a live
// position has no current price.
type MissingPriceError struct {
	InstrumentID int64
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no current price for instrument %d", e.InstrumentID)
}

// StorageError wraps a failure of the underlying store. It is the only error
// class a caller may retry, and only when Retryable is set.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
