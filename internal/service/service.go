package service

import (
	"context"
	"strings"
	"time"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventPublisher receives domain events after their transaction commits
type EventPublisher interface {
	PublishPrescriptionDispensed(ctx context.Context, event *models.PrescriptionDispensedEvent) error
	PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error
	PublishExaminationCancelled(ctx context.Context, event *models.ExaminationCancelledEvent) error
}

// Locker is a distributed lock used to reject duplicate in-flight requests early
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyStore remembers the result of a request by its client-supplied key.
// ClaimIdempotencyKey sets the key only if it is absent.
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

type nopPublisher struct{}

func (nopPublisher) PublishPrescriptionDispensed(context.Context, *models.PrescriptionDispensedEvent) error {
	return nil
}

func (nopPublisher) PublishPaymentRecorded(context.Context, *models.PaymentRecordedEvent) error {
	return nil
}

func (nopPublisher) PublishExaminationCancelled(context.Context, *models.ExaminationCancelledEvent) error {
	return nil
}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// failureReason turns an error into a metric label
func failureReason(err error) string {
	return strings.ToLower(apperr.Code(err))
}

// checkMoney rejects negative amounts and amounts finer than a cent, which NUMERIC(14,2) would round
func checkMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return apperr.Invalid("%s must not be negative", field)
	}
	if !d.Equal(d.Round(2)) {
		return apperr.Invalid("%s must have at most 2 decimal places, got %s", field, d.String())
	}
	return nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
