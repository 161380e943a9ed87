package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"
)

const paymentColumns = "id, examination_id, payment_method_id, amount_billed, amount_tendered, change_amount, " +
	"status, notes, created_at, updated_at"

// CreatePayment creates a new payment record
func (r *repo) CreatePayment(ctx context.Context, p *models.Payment) error {
	ts := now()
	id, err := r.insert(ctx, `
		INSERT INTO payments (examination_id, payment_method_id, amount_billed, amount_tendered, change_amount,
			status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ExaminationID, p.PaymentMethodID, p.AmountBilled, p.AmountTendered, p.ChangeAmount,
		p.Status, p.Notes, ts, ts)
	if errors.Is(err, errUniqueViolation) {
		return fmt.Errorf("examination %d: %w", p.ExaminationID, apperr.ErrAlreadySettled)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	p.ID, p.CreatedAt, p.UpdatedAt = id, ts, ts
	return nil
}

// GetPaymentByID retrieves a payment by ID
func (r *repo) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var p models.Payment
	err := r.get(ctx, &p, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("payment", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPaymentsByExamination retrieves payments for an examination, oldest first
func (r *repo) ListPaymentsByExamination(ctx context.Context, examinationID int64) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.selectAll(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE examination_id = ? ORDER BY id", examinationID)
	return payments, err
}

// HasPaidPayment reports whether the examination has a Paid payment other than excludeID
func (r *repo) HasPaidPayment(ctx context.Context, examinationID, excludeID int64) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE examination_id = ? AND status = ? AND id <> ?)",
		examinationID, models.PaymentStatusPaid, excludeID)
	return exists, err
}

// UpdatePayment writes every mutable payment field
func (r *repo) UpdatePayment(ctx context.Context, p *models.Payment) error {
	p.UpdatedAt = now()
	res, err := r.execChecked(ctx, `
		UPDATE payments SET payment_method_id = ?, amount_billed = ?, amount_tendered = ?, change_amount = ?,
			status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		p.PaymentMethodID, p.AmountBilled, p.AmountTendered, p.ChangeAmount, p.Status, p.Notes, p.UpdatedAt, p.ID)
	if errors.Is(err, errUniqueViolation) {
		return fmt.Errorf("examination %d: %w", p.ExaminationID, apperr.ErrAlreadySettled)
	}
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return expectOne(res, apperr.NotFound("payment", p.ID))
}
