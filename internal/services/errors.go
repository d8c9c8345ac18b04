package services

import (
	"context"
	"errors"
	"fmt"

	"payrank-backend/internal/store"
)

var (
	ErrInvalidAmount       = errors.New("invalid payment amount")
	ErrInvalidReference    = errors.New("payment reference is required")
	ErrUserNotFound        = errors.New("user not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrStorageFailure      = errors.New("storage unavailable")
	ErrConcurrencyConflict = errors.New("data has been modified by another request, please retry")
	ErrInvalidTransition   = errors.New("payment status does not allow this operation")
)

// domainErrors pass through classify untouched.
var domainErrors = []error{
	ErrInvalidAmount,
	ErrInvalidReference,
	ErrUserNotFound,
	ErrPaymentNotFound,
	ErrPaymentFailed,
	ErrInvalidTransition,
	ErrConcurrencyConflict,
	ErrStorageFailure,
}

// classify maps store and driver errors onto the service taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}
