package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"
)

const paymentMethodColumns = "id, name, description, category, active, created_at, updated_at"

// CreatePaymentMethod inserts an active payment method
func (r *repo) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	ts := now()
	pm.Active = true
	id, err := r.insert(ctx, `
		INSERT INTO payment_methods (name, description, category, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pm.Name, pm.Description, pm.Category, pm.Active, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create payment method: %w", err)
	}
	pm.ID, pm.CreatedAt, pm.UpdatedAt = id, ts, ts
	return nil
}

// GetPaymentMethodByID retrieves a payment method, active or not
func (r *repo) GetPaymentMethodByID(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := r.get(ctx, &pm, "SELECT "+paymentMethodColumns+" FROM payment_methods WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("payment method", id)
	}
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// ListPaymentMethods retrieves payment methods ordered by id
func (r *repo) ListPaymentMethods(ctx context.Context, includeInactive bool) ([]models.PaymentMethod, error) {
	query := "SELECT " + paymentMethodColumns + " FROM payment_methods"
	args := []interface{}{}
	if !includeInactive {
		query += " WHERE active = ?"
		args = append(args, true)
	}
	methods := []models.PaymentMethod{}
	err := r.selectAll(ctx, &methods, query+" ORDER BY id", args...)
	return methods, err
}

// UpdatePaymentMethod writes name, description, category and active flag
func (r *repo) UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	pm.UpdatedAt = now()
	res, err := r.execChecked(ctx,
		"UPDATE payment_methods SET name = ?, description = ?, category = ?, active = ?, updated_at = ? WHERE id = ?",
		pm.Name, pm.Description, pm.Category, pm.Active, pm.UpdatedAt, pm.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment method: %w", err)
	}
	return expectOne(res, apperr.NotFound("payment method", pm.ID))
}

// DeactivatePaymentMethod marks a payment method inactive and returns it
func (r *repo) DeactivatePaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	res, err := r.exec(ctx, "UPDATE payment_methods SET active = ?, updated_at = ? WHERE id = ?", false, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate payment method: %w", err)
	}
	if err := expectOne(res, apperr.NotFound("payment method", id)); err != nil {
		return nil, err
	}
	return r.GetPaymentMethodByID(ctx, id)
}
