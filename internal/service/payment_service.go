package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultIdempotencyTTL = 24 * time.Hour

// PaymentService records settlements of dispensed examinations
type PaymentService struct {
	store          *store.Store
	idempotency    IdempotencyStore
	eventPublisher EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service. idempotency and eventPublisher may be nil.
func NewPaymentService(store *store.Store, idempotency IdempotencyStore, eventPublisher EventPublisher, idempotencyTTL time.Duration) *PaymentService {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotencyTTL
	}
	return &PaymentService{
		store:          store,
		idempotency:    idempotency,
		eventPublisher: publisherOrNop(eventPublisher),
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CreatePaymentRequest represents a request to settle an examination.
// AmountBilled defaults to the live total of the prescription.
type CreatePaymentRequest struct {
	ExaminationID   int64            `json:"examination_id" binding:"required"`
	PaymentMethodID *int64           `json:"payment_method_id"`
	AmountBilled    *decimal.Decimal `json:"amount_billed"`
	AmountTendered  decimal.Decimal  `json:"amount_tendered"`
	Deferred        bool             `json:"deferred"`
	Notes           string           `json:"notes"`
}

// UpdatePaymentRequest applies the non-nil fields and re-derives change and status
type UpdatePaymentRequest struct {
	PaymentMethodID *int64           `json:"payment_method_id"`
	AmountBilled    *decimal.Decimal `json:"amount_billed"`
	AmountTendered  *decimal.Decimal `json:"amount_tendered"`
	Deferred        *bool            `json:"deferred"`
	Notes           *string          `json:"notes"`
}

// settle derives change and status from billed and tendered amounts
func settle(billed, tendered decimal.Decimal, deferred bool) (decimal.Decimal, string) {
	change := tendered.Sub(billed)
	if change.IsNegative() {
		change = decimal.Zero
	}
	switch {
	case tendered.GreaterThanOrEqual(billed):
		return change, models.PaymentStatusPaid
	case deferred:
		return change, models.PaymentStatusDeferred
	default:
		return change, models.PaymentStatusUnpaid
	}
}

// Create records a payment against a Completed examination.
// A replayed idempotencyKey returns the payment recorded the first time.
func (s *PaymentService) Create(ctx context.Context, req *CreatePaymentRequest, idempotencyKey string) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Create")
	defer func() { util.EndSpan(span, err) }()
	defer func() {
		if err != nil {
			util.PaymentFailedTotal.WithLabelValues(failureReason(err)).Inc()
		}
	}()

	if _, err := auth.Authorize(ctx, auth.OpCreatePayment); err != nil {
		return nil, err
	}

	if err := checkMoney("amount tendered", req.AmountTendered); err != nil {
		return nil, err
	}
	if req.AmountBilled != nil {
		if err := checkMoney("amount billed", *req.AmountBilled); err != nil {
			return nil, err
		}
	}

	existing, claimed, err := s.claim(ctx, idempotencyKey, req.ExaminationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("Duplicate payment request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("payment_id", existing.ID))
		return existing, nil
	}

	p := &models.Payment{
		ExaminationID:   req.ExaminationID,
		PaymentMethodID: req.PaymentMethodID,
		AmountTendered:  req.AmountTendered,
		Notes:           req.Notes,
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.LockExamination(ctx, req.ExaminationID)
		if err != nil {
			return err
		}
		if e.PrescriptionStatus != models.PrescriptionStatusCompleted {
			return fmt.Errorf("examination %d is %s, payments follow dispensing: %w",
				e.ID, e.PrescriptionStatus, apperr.ErrInvalidState)
		}
		if err := checkPaymentMethod(ctx, tx, req.PaymentMethodID); err != nil {
			return err
		}

		if req.AmountBilled != nil {
			p.AmountBilled = *req.AmountBilled
		} else {
			lines, err := tx.ListPrescriptionLines(ctx, e.ID)
			if err != nil {
				return err
			}
			p.AmountBilled = store.SumLines(lines)
		}

		paid, err := tx.HasPaidPayment(ctx, e.ID, 0)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("examination %d: %w", e.ID, apperr.ErrAlreadySettled)
		}

		p.ChangeAmount, p.Status = settle(p.AmountBilled, p.AmountTendered, req.Deferred)
		return tx.CreatePayment(ctx, p)
	})
	if err != nil {
		if claimed {
			s.unclaim(ctx, idempotencyKey)
		}
		return nil, err
	}

	s.remember(ctx, idempotencyKey, p.ExaminationID, p.ID)
	s.recorded(ctx, p)
	return p, nil
}

// Update changes a payment and re-derives its change and status
func (s *PaymentService) Update(ctx context.Context, id int64, req *UpdatePaymentRequest) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Update")
	defer func() { util.EndSpan(span, err) }()
	defer func() {
		if err != nil {
			util.PaymentFailedTotal.WithLabelValues(failureReason(err)).Inc()
		}
	}()

	if _, err := auth.Authorize(ctx, auth.OpUpdatePayment); err != nil {
		return nil, err
	}
	if req.AmountBilled != nil {
		if err := checkMoney("amount billed", *req.AmountBilled); err != nil {
			return nil, err
		}
	}
	if req.AmountTendered != nil {
		if err := checkMoney("amount tendered", *req.AmountTendered); err != nil {
			return nil, err
		}
	}

	var p *models.Payment
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.GetPaymentByID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.LockExamination(ctx, current.ExaminationID); err != nil {
			return err
		}
		// re-read under the examination lock
		if p, err = tx.GetPaymentByID(ctx, id); err != nil {
			return err
		}

		if req.PaymentMethodID != nil {
			if err := checkPaymentMethod(ctx, tx, req.PaymentMethodID); err != nil {
				return err
			}
			p.PaymentMethodID = req.PaymentMethodID
		}
		if req.AmountBilled != nil {
			p.AmountBilled = *req.AmountBilled
		}
		if req.AmountTendered != nil {
			p.AmountTendered = *req.AmountTendered
		}
		if req.Notes != nil {
			p.Notes = *req.Notes
		}
		deferred := p.Status == models.PaymentStatusDeferred
		if req.Deferred != nil {
			deferred = *req.Deferred
		}

		p.ChangeAmount, p.Status = settle(p.AmountBilled, p.AmountTendered, deferred)
		if p.Status == models.PaymentStatusPaid {
			paid, err := tx.HasPaidPayment(ctx, p.ExaminationID, p.ID)
			if err != nil {
				return err
			}
			if paid {
				return fmt.Errorf("examination %d: %w", p.ExaminationID, apperr.ErrAlreadySettled)
			}
		}
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.recorded(ctx, p)
	return p, nil
}

// Get retrieves a payment by ID
func (s *PaymentService) Get(ctx context.Context, id int64) (*models.Payment, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadPayment); err != nil {
		return nil, err
	}
	return s.store.GetPaymentByID(ctx, id)
}

// ListByExamination returns every payment recorded for an examination
func (s *PaymentService) ListByExamination(ctx context.Context, examinationID int64) ([]models.Payment, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadPayment); err != nil {
		return nil, err
	}
	if _, err := s.store.GetExaminationByID(ctx, examinationID); err != nil {
		return nil, err
	}
	return s.store.ListPaymentsByExamination(ctx, examinationID)
}

// Unpaid returns dispensed examinations that still lack a Paid payment
func (s *PaymentService) Unpaid(ctx context.Context) ([]models.PrescriptionSummary, error) {
	if _, err := auth.Authorize(ctx, auth.OpListUnpaid); err != nil {
		return nil, err
	}
	return s.store.ListUnpaidPrescriptions(ctx)
}

func checkPaymentMethod(ctx context.Context, tx *store.Tx, id *int64) error {
	if id == nil {
		return nil
	}
	pm, err := tx.GetPaymentMethodByID(ctx, *id)
	if err != nil {
		return err
	}
	if !pm.Active {
		return apperr.Invalid("payment method %d is inactive", pm.ID)
	}
	return nil
}

// Idempotency values are "<examination id>:<payment id>", or "<examination id>:pending" while the first request runs
const (
	idempotencyPending = "pending"
	claimTTL           = time.Minute
)

func idempotencyKeyFor(key string) string {
	return "payment:" + key
}

// claim reserves key for a request against examinationID. It returns the payment an earlier request
// with the same key recorded, or claimed=true when this request now owns the key.
// Redis failures are logged and the request proceeds unprotected.
func (s *PaymentService) claim(ctx context.Context, key string, examinationID int64) (*models.Payment, bool, error) {
	if key == "" || s.idempotency == nil {
		return nil, false, nil
	}

	val, ok, err := s.idempotency.GetIdempotencyKey(ctx, idempotencyKeyFor(key))
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		p, err := s.resolve(ctx, key, val, examinationID)
		return p, false, err
	}

	pending := fmt.Sprintf("%d:%s", examinationID, idempotencyPending)
	claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, idempotencyKeyFor(key), pending, claimTTL)
	if err != nil {
		s.logger.Warn("Idempotency claim failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false, nil
	}
	if !claimed {
		// lost the race to a concurrent request with the same key
		return nil, false, fmt.Errorf("payment with idempotency key %q is in progress: %w", key, apperr.ErrConflict)
	}
	return nil, true, nil
}

func (s *PaymentService) resolve(ctx context.Context, key, val string, examinationID int64) (*models.Payment, error) {
	examPart, rest, found := strings.Cut(val, ":")
	owner, err := strconv.ParseInt(examPart, 10, 64)
	if !found || err != nil {
		s.logger.Warn("Ignoring malformed idempotency value", zap.String("idempotency_key", key), zap.String("value", val))
		return nil, nil
	}
	if owner != examinationID {
		return nil, apperr.Invalid("idempotency key %q was already used for examination %d", key, owner)
	}
	if rest == idempotencyPending {
		return nil, fmt.Errorf("payment with idempotency key %q is in progress: %w", key, apperr.ErrConflict)
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		s.logger.Warn("Ignoring malformed idempotency value", zap.String("idempotency_key", key), zap.String("value", val))
		return nil, nil
	}
	return s.store.GetPaymentByID(ctx, id)
}

func (s *PaymentService) unclaim(ctx context.Context, key string) {
	if err := s.idempotency.DeleteIdempotencyKey(ctx, idempotencyKeyFor(key)); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *PaymentService) remember(ctx context.Context, key string, examinationID, paymentID int64) {
	if key == "" || s.idempotency == nil {
		return
	}
	val := fmt.Sprintf("%d:%d", examinationID, paymentID)
	if err := s.idempotency.SetIdempotencyKey(ctx, idempotencyKeyFor(key), val, s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to store idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *PaymentService) recorded(ctx context.Context, p *models.Payment) {
	util.PaymentsRecordedTotal.WithLabelValues(p.Status).Inc()
	s.logger.Info("Payment recorded",
		zap.Int64("payment_id", p.ID),
		zap.Int64("examination_id", p.ExaminationID),
		zap.String("amount_billed", p.AmountBilled.String()),
		zap.String("change", p.ChangeAmount.String()),
		zap.String("status", p.Status))

	event := &models.PaymentRecordedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentRecorded),
		PaymentID:     p.ID,
		ExaminationID: p.ExaminationID,
		AmountBilled:  p.AmountBilled,
		ChangeAmount:  p.ChangeAmount,
		Status:        p.Status,
	}
	if err := s.eventPublisher.PublishPaymentRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentRecorded event", zap.Int64("payment_id", p.ID), zap.Error(err))
	}
}
