package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const medicationColumns = "id, name, description, stock_quantity, unit_price, created_at, updated_at"

// CreateMedication inserts a catalog entry
func (r *repo) CreateMedication(ctx context.Context, m *models.Medication) error {
	ts := now()
	id, err := r.insert(ctx, `
		INSERT INTO medications (name, description, stock_quantity, unit_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Name, m.Description, m.StockQuantity, m.UnitPrice, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create medication: %w", err)
	}
	m.ID, m.CreatedAt, m.UpdatedAt = id, ts, ts
	return nil
}

// GetMedicationByID retrieves a medication by ID
func (r *repo) GetMedicationByID(ctx context.Context, id int64) (*models.Medication, error) {
	var m models.Medication
	err := r.get(ctx, &m, "SELECT "+medicationColumns+" FROM medications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("medication", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMedications retrieves all medications ordered by name
func (r *repo) ListMedications(ctx context.Context) ([]models.Medication, error) {
	meds := []models.Medication{}
	err := r.selectAll(ctx, &meds, "SELECT "+medicationColumns+" FROM medications ORDER BY name, id")
	return meds, err
}

// UpdateMedication updates descriptive fields and price; stock is left alone
func (r *repo) UpdateMedication(ctx context.Context, m *models.Medication) error {
	m.UpdatedAt = now()
	res, err := r.execChecked(ctx,
		"UPDATE medications SET name = ?, description = ?, unit_price = ?, updated_at = ? WHERE id = ?",
		m.Name, m.Description, m.UnitPrice, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update medication: %w", err)
	}
	return expectOne(res, apperr.NotFound("medication", m.ID))
}

// DeleteMedication removes a medication that no prescription references
func (r *repo) DeleteMedication(ctx context.Context, id int64) error {
	res, err := r.execChecked(ctx, "DELETE FROM medications WHERE id = ?", id)
	if errors.Is(err, errForeignKey) {
		return fmt.Errorf("medication %d is referenced by prescriptions: %w", id, apperr.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("failed to delete medication: %w", err)
	}
	return expectOne(res, apperr.NotFound("medication", id))
}

// LockMedications loads the given medications ordered by id, holding row locks on postgres.
// Ascending id order keeps concurrent dispenses sharing medications from deadlocking.
func (r *repo) LockMedications(ctx context.Context, ids []int64) ([]models.Medication, error) {
	if len(ids) == 0 {
		return []models.Medication{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+medicationColumns+" FROM medications WHERE id IN (?) ORDER BY id"+r.forUpdate(), ids)
	if err != nil {
		return nil, err
	}

	meds := []models.Medication{}
	if err := r.selectAll(ctx, &meds, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock medications: %w", err)
	}
	return meds, nil
}

// DecrementStock subtracts amount only if enough stock remains, returning the new level
func (r *repo) DecrementStock(ctx context.Context, medicationID int64, amount int) (int, error) {
	res, err := r.execChecked(ctx, `
		UPDATE medications SET stock_quantity = stock_quantity - ?, updated_at = ?
		WHERE id = ? AND stock_quantity >= ?`,
		amount, now(), medicationID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		m, err := r.GetMedicationByID(ctx, medicationID)
		if err != nil {
			return 0, err
		}
		return 0, &apperr.InsufficientStockError{Shortages: []apperr.StockShortage{{
			MedicationID: m.ID, Name: m.Name, Requested: amount, Available: m.StockQuantity,
		}}}
	}

	var remaining int
	if err := r.get(ctx, &remaining, "SELECT stock_quantity FROM medications WHERE id = ?", medicationID); err != nil {
		return 0, err
	}
	return remaining, nil
}

// Restock adds amount to a medication's stock, returning the new level
func (r *repo) Restock(ctx context.Context, medicationID int64, amount int) (int, error) {
	res, err := r.exec(ctx,
		"UPDATE medications SET stock_quantity = stock_quantity + ?, updated_at = ? WHERE id = ?",
		amount, now(), medicationID)
	if err != nil {
		return 0, fmt.Errorf("failed to restock: %w", err)
	}
	if err := expectOne(res, apperr.NotFound("medication", medicationID)); err != nil {
		return 0, err
	}

	var level int
	err = r.get(ctx, &level, "SELECT stock_quantity FROM medications WHERE id = ?", medicationID)
	return level, err
}

func expectOne(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
