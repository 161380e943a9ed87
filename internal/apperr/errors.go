package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the store, service and transport layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidState      = errors.New("invalid state")
	ErrAlreadyDispensed  = errors.New("prescription already dispensed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyPrescription = errors.New("prescription has no items")
	ErrConflict          = errors.New("concurrent modification, retry after re-reading")
	ErrAlreadySettled    = errors.New("examination already has a paid payment")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
)

// StockShortage describes one medication that cannot cover the requested quantity.
type StockShortage struct {
	MedicationID int64  `json:"medication_id"`
	Name         string `json:"name"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
}

// InsufficientStockError lists every medication that blocked a dispense.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (id=%d, requested=%d, available=%d)",
			s.Name, s.MedicationID, s.Requested, s.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock, strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Invalid wraps ErrInvalidArgument with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// NotFound wraps ErrNotFound naming the missing entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrAlreadyDispensed):
		return "ALREADY_DISPENSED"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrEmptyPrescription):
		return "EMPTY_PRESCRIPTION"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrAlreadySettled):
		return "ALREADY_SETTLED"
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	default:
		return "INTERNAL"
	}
}
