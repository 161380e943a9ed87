package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"

	"github.com/shopspring/decimal"
)

const lineSelect = `
	SELECT pi.id, pi.examination_id, pi.medication_id, m.name AS medication_name,
		pi.quantity, pi.directions, m.unit_price
	FROM prescription_items pi
	JOIN medications m ON m.id = pi.medication_id`

// CreatePrescriptionItem appends a line item to an examination
func (r *repo) CreatePrescriptionItem(ctx context.Context, item *models.PrescriptionItem) error {
	ts := now()
	id, err := r.insert(ctx, `
		INSERT INTO prescription_items (examination_id, medication_id, quantity, directions, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.ExaminationID, item.MedicationID, item.Quantity, item.Directions, ts)
	if err != nil {
		return fmt.Errorf("failed to create prescription item: %w", err)
	}
	item.ID, item.CreatedAt = id, ts
	return nil
}

// GetPrescriptionItem retrieves one item of an examination
func (r *repo) GetPrescriptionItem(ctx context.Context, examinationID, itemID int64) (*models.PrescriptionItem, error) {
	var item models.PrescriptionItem
	err := r.get(ctx, &item, `
		SELECT id, examination_id, medication_id, quantity, directions, created_at
		FROM prescription_items WHERE id = ? AND examination_id = ?`, itemID, examinationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("prescription item", itemID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdatePrescriptionItem changes quantity and directions
func (r *repo) UpdatePrescriptionItem(ctx context.Context, item *models.PrescriptionItem) error {
	res, err := r.execChecked(ctx,
		"UPDATE prescription_items SET quantity = ?, directions = ? WHERE id = ? AND examination_id = ?",
		item.Quantity, item.Directions, item.ID, item.ExaminationID)
	if err != nil {
		return fmt.Errorf("failed to update prescription item: %w", err)
	}
	return expectOne(res, apperr.NotFound("prescription item", item.ID))
}

// DeletePrescriptionItem removes one item of an examination
func (r *repo) DeletePrescriptionItem(ctx context.Context, examinationID, itemID int64) error {
	res, err := r.exec(ctx, "DELETE FROM prescription_items WHERE id = ? AND examination_id = ?", itemID, examinationID)
	if err != nil {
		return fmt.Errorf("failed to delete prescription item: %w", err)
	}
	return expectOne(res, apperr.NotFound("prescription item", itemID))
}

// ListPrescriptionLines returns an examination's items in creation order, priced at the current catalog price
func (r *repo) ListPrescriptionLines(ctx context.Context, examinationID int64) ([]models.PrescriptionLine, error) {
	lines := []models.PrescriptionLine{}
	if err := r.selectAll(ctx, &lines, lineSelect+" WHERE pi.examination_id = ? ORDER BY pi.id", examinationID); err != nil {
		return nil, fmt.Errorf("failed to list prescription items: %w", err)
	}
	for i := range lines {
		lines[i].LineTotal = LineTotal(lines[i].UnitPrice, lines[i].Quantity)
	}
	return lines, nil
}

// queueRow is one item row of a prescription queue query
type queueRow struct {
	models.Examination
	ItemID         int64           `db:"item_id"`
	MedicationID   int64           `db:"medication_id"`
	MedicationName string          `db:"medication_name"`
	Quantity       int             `db:"quantity"`
	Directions     string          `db:"directions"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
}

const queueSelect = `
	SELECT e.id, e.patient_id, e.doctor_id, e.examined_at, e.complaint, e.diagnosis, e.recommendation,
		e.prescription_status, e.created_at, e.updated_at,
		pi.id AS item_id, pi.medication_id, m.name AS medication_name, pi.quantity, pi.directions, m.unit_price
	FROM examinations e
	JOIN prescription_items pi ON pi.examination_id = e.id
	JOIN medications m ON m.id = pi.medication_id`

// ListPendingPrescriptions returns Waiting examinations that have at least one item
func (r *repo) ListPendingPrescriptions(ctx context.Context) ([]models.PrescriptionSummary, error) {
	return r.listQueue(ctx, queueSelect+`
		WHERE e.prescription_status = ?
		ORDER BY e.id, pi.id`, models.PrescriptionStatusWaiting)
}

// ListUnpaidPrescriptions returns Completed examinations without a Paid payment
func (r *repo) ListUnpaidPrescriptions(ctx context.Context) ([]models.PrescriptionSummary, error) {
	return r.listQueue(ctx, queueSelect+`
		WHERE e.prescription_status = ?
		AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.examination_id = e.id AND p.status = ?)
		ORDER BY e.id, pi.id`, models.PrescriptionStatusCompleted, models.PaymentStatusPaid)
}

func (r *repo) listQueue(ctx context.Context, query string, args ...interface{}) ([]models.PrescriptionSummary, error) {
	var rows []queueRow
	if err := r.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}

	summaries := []models.PrescriptionSummary{}
	for _, row := range rows {
		if n := len(summaries); n == 0 || summaries[n-1].Examination.ID != row.Examination.ID {
			summaries = append(summaries, models.PrescriptionSummary{
				Examination: row.Examination,
				Items:       []models.PrescriptionLine{},
				TotalBilled: decimal.Zero,
			})
		}
		s := &summaries[len(summaries)-1]
		line := models.PrescriptionLine{
			ID:             row.ItemID,
			ExaminationID:  row.Examination.ID,
			MedicationID:   row.MedicationID,
			MedicationName: row.MedicationName,
			Quantity:       row.Quantity,
			Directions:     row.Directions,
			UnitPrice:      row.UnitPrice,
			LineTotal:      LineTotal(row.UnitPrice, row.Quantity),
		}
		s.Items = append(s.Items, line)
		s.TotalBilled = s.TotalBilled.Add(line.LineTotal)
	}
	return summaries, nil
}

// LineTotal is quantity × unit price
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// SumLines totals the line totals of lines
func SumLines(lines []models.PrescriptionLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}
