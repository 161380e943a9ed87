package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"
)

const examinationColumns = "id, patient_id, doctor_id, examined_at, complaint, diagnosis, recommendation, " +
	"prescription_status, created_at, updated_at"

// CreateExamination inserts an examination in the Waiting state
func (r *repo) CreateExamination(ctx context.Context, e *models.Examination) error {
	ts := now()
	if e.ExaminedAt.IsZero() {
		e.ExaminedAt = ts
	}
	e.PrescriptionStatus = models.PrescriptionStatusWaiting

	id, err := r.insert(ctx, `
		INSERT INTO examinations (patient_id, doctor_id, examined_at, complaint, diagnosis, recommendation,
			prescription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PatientID, e.DoctorID, e.ExaminedAt, e.Complaint, e.Diagnosis, e.Recommendation,
		e.PrescriptionStatus, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create examination: %w", err)
	}
	e.ID, e.CreatedAt, e.UpdatedAt = id, ts, ts
	return nil
}

// GetExaminationByID retrieves an examination by ID
func (r *repo) GetExaminationByID(ctx context.Context, id int64) (*models.Examination, error) {
	return r.getExamination(ctx, id, "")
}

// LockExamination retrieves an examination holding its row lock until the transaction ends
func (r *repo) LockExamination(ctx context.Context, id int64) (*models.Examination, error) {
	return r.getExamination(ctx, id, r.forUpdate())
}

func (r *repo) getExamination(ctx context.Context, id int64, suffix string) (*models.Examination, error) {
	var e models.Examination
	err := r.get(ctx, &e, "SELECT "+examinationColumns+" FROM examinations WHERE id = ?"+suffix, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("examination", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// TransitionPrescriptionStatus moves an examination from one status to another.
// The update is guarded on the expected current status; a lost race reports ErrConflict.
func (r *repo) TransitionPrescriptionStatus(ctx context.Context, id int64, from, to string) error {
	res, err := r.exec(ctx,
		"UPDATE examinations SET prescription_status = ?, updated_at = ? WHERE id = ? AND prescription_status = ?",
		to, now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update prescription status: %w", err)
	}
	return expectOne(res, fmt.Errorf("examination %d is no longer %s: %w", id, from, apperr.ErrConflict))
}

// DeleteExamination removes an examination; its prescription items cascade
func (r *repo) DeleteExamination(ctx context.Context, id int64) error {
	res, err := r.execChecked(ctx, "DELETE FROM examinations WHERE id = ?", id)
	if errors.Is(err, errForeignKey) {
		return fmt.Errorf("examination %d has payments: %w", id, apperr.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("failed to delete examination: %w", err)
	}
	return expectOne(res, apperr.NotFound("examination", id))
}
