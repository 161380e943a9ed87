package service

import (
	"context"
	"fmt"
	"time"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"go.uber.org/zap"
)

// ExaminationService records examinations and moves them out of the dispensing queue
type ExaminationService struct {
	store          *store.Store
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewExaminationService creates a new examination service. A nil publisher disables events.
func NewExaminationService(store *store.Store, eventPublisher EventPublisher) *ExaminationService {
	return &ExaminationService{
		store:          store,
		eventPublisher: publisherOrNop(eventPublisher),
		logger:         util.GetLogger(),
	}
}

// CreateExaminationRequest represents a request to record an examination
type CreateExaminationRequest struct {
	PatientID      int64      `json:"patient_id" binding:"required"`
	DoctorID       int64      `json:"doctor_id" binding:"required"`
	ExaminedAt     *time.Time `json:"examined_at"`
	Complaint      string     `json:"complaint"`
	Diagnosis      string     `json:"diagnosis"`
	Recommendation string     `json:"recommendation"`
}

// CancelExaminationRequest carries an optional reason for cancelling
type CancelExaminationRequest struct {
	Reason string `json:"reason"`
}

// Create records an examination in the Waiting state
func (s *ExaminationService) Create(ctx context.Context, req *CreateExaminationRequest) (*models.Examination, error) {
	ctx, span := util.StartSpan(ctx, "ExaminationService.Create")
	defer span.End()

	if _, err := auth.Authorize(ctx, auth.OpCreateExamination); err != nil {
		return nil, err
	}

	e := &models.Examination{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Complaint:      req.Complaint,
		Diagnosis:      req.Diagnosis,
		Recommendation: req.Recommendation,
	}
	if req.ExaminedAt != nil {
		e.ExaminedAt = req.ExaminedAt.UTC()
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.PatientExists(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("patient", req.PatientID)
		}
		if ok, err = tx.DoctorExists(ctx, req.DoctorID); err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("doctor", req.DoctorID)
		}
		return tx.CreateExamination(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Examination recorded",
		zap.Int64("examination_id", e.ID),
		zap.Int64("patient_id", e.PatientID),
		zap.Int64("doctor_id", e.DoctorID))
	return e, nil
}

// Get retrieves an examination by ID
func (s *ExaminationService) Get(ctx context.Context, id int64) (*models.Examination, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadExamination); err != nil {
		return nil, err
	}
	return s.store.GetExaminationByID(ctx, id)
}

// Cancel moves a Waiting examination to Cancelled so it leaves the dispensing queue
func (s *ExaminationService) Cancel(ctx context.Context, id int64, reason string) (*models.Examination, error) {
	ctx, span := util.StartSpan(ctx, "ExaminationService.Cancel")
	defer span.End()

	p, err := auth.Authorize(ctx, auth.OpCancelExamination)
	if err != nil {
		return nil, err
	}

	var e *models.Examination
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if e, err = tx.LockExamination(ctx, id); err != nil {
			return err
		}
		if models.IsTerminal(e.PrescriptionStatus) {
			return fmt.Errorf("examination %d is %s: %w", id, e.PrescriptionStatus, apperr.ErrInvalidState)
		}
		if err := tx.TransitionPrescriptionStatus(ctx, id, models.PrescriptionStatusWaiting, models.PrescriptionStatusCancelled); err != nil {
			return err
		}
		e, err = tx.GetExaminationByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Examination cancelled",
		zap.Int64("examination_id", id),
		zap.Int64("user_id", p.ID),
		zap.String("reason", reason))

	event := &models.ExaminationCancelledEvent{
		BaseEvent:     newBaseEvent(models.EventTypeExaminationCancelled),
		ExaminationID: id,
		Reason:        reason,
	}
	if err := s.eventPublisher.PublishExaminationCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish ExaminationCancelled event", zap.Int64("examination_id", id), zap.Error(err))
	}

	return e, nil
}

// Delete removes an examination and its items. Dispensed examinations are kept for the payment ledger.
func (s *ExaminationService) Delete(ctx context.Context, id int64) error {
	if _, err := auth.Authorize(ctx, auth.OpDeleteExamination); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.LockExamination(ctx, id)
		if err != nil {
			return err
		}
		if e.PrescriptionStatus == models.PrescriptionStatusCompleted {
			return fmt.Errorf("examination %d has been dispensed: %w", id, apperr.ErrInvalidState)
		}
		return tx.DeleteExamination(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Examination deleted", zap.Int64("examination_id", id))
	return nil
}
