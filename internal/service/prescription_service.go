package service

import (
	"context"
	"fmt"
	"strings"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"go.uber.org/zap"
)

// PrescriptionService manages the prescription items of examinations
type PrescriptionService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewPrescriptionService creates a new prescription service
func NewPrescriptionService(store *store.Store) *PrescriptionService {
	return &PrescriptionService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateItemRequest represents one prescribed medication
type CreateItemRequest struct {
	MedicationID int64  `json:"medication_id" binding:"required"`
	Quantity     int    `json:"quantity"`
	Directions   string `json:"directions"`
}

// BulkCreateRequest represents several prescribed medications added at once
type BulkCreateRequest struct {
	Items []CreateItemRequest `json:"items" binding:"required,min=1"`
}

// UpdateItemRequest applies the non-nil fields to an item
type UpdateItemRequest struct {
	Quantity   *int    `json:"quantity"`
	Directions *string `json:"directions"`
}

// CreateItem prescribes a medication on a Waiting examination. Stock is not touched until dispensing.
func (s *PrescriptionService) CreateItem(ctx context.Context, examinationID int64, req *CreateItemRequest) (*models.PrescriptionItem, error) {
	if _, err := auth.Authorize(ctx, auth.OpWritePrescription); err != nil {
		return nil, err
	}
	if err := validateItem(req); err != nil {
		return nil, err
	}

	var item *models.PrescriptionItem
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := requireWaiting(ctx, tx, examinationID); err != nil {
			return err
		}
		var err error
		item, err = insertItem(ctx, tx, examinationID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Prescription item added",
		zap.Int64("examination_id", examinationID),
		zap.Int64("medication_id", item.MedicationID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

// BulkCreate prescribes every entry or none of them. The error names the first failing entry.
func (s *PrescriptionService) BulkCreate(ctx context.Context, examinationID int64, reqs []CreateItemRequest) ([]models.PrescriptionItem, error) {
	ctx, span := util.StartSpan(ctx, "PrescriptionService.BulkCreate")
	defer span.End()

	if _, err := auth.Authorize(ctx, auth.OpWritePrescription); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, apperr.Invalid("at least one item is required")
	}
	for i := range reqs {
		if err := validateItem(&reqs[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	items := make([]models.PrescriptionItem, 0, len(reqs))
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := requireWaiting(ctx, tx, examinationID); err != nil {
			return err
		}
		for i := range reqs {
			item, err := insertItem(ctx, tx, examinationID, &reqs[i])
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Prescription items added",
		zap.Int64("examination_id", examinationID),
		zap.Int("count", len(items)))
	return items, nil
}

// ListByExamination returns an examination's items priced at the current catalog price
func (s *PrescriptionService) ListByExamination(ctx context.Context, examinationID int64) ([]models.PrescriptionLine, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadPrescription); err != nil {
		return nil, err
	}
	if _, err := s.store.GetExaminationByID(ctx, examinationID); err != nil {
		return nil, err
	}
	return s.store.ListPrescriptionLines(ctx, examinationID)
}

// UpdateItem changes quantity or directions of an item on a Waiting examination
func (s *PrescriptionService) UpdateItem(ctx context.Context, examinationID, itemID int64, req *UpdateItemRequest) (*models.PrescriptionItem, error) {
	if _, err := auth.Authorize(ctx, auth.OpWritePrescription); err != nil {
		return nil, err
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, apperr.Invalid("quantity must be positive, got %d", *req.Quantity)
	}

	var item *models.PrescriptionItem
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := requireWaiting(ctx, tx, examinationID); err != nil {
			return err
		}
		var err error
		if item, err = tx.GetPrescriptionItem(ctx, examinationID, itemID); err != nil {
			return err
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.Directions != nil {
			item.Directions = *req.Directions
		}
		return tx.UpdatePrescriptionItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item from a Waiting examination
func (s *PrescriptionService) DeleteItem(ctx context.Context, examinationID, itemID int64) error {
	if _, err := auth.Authorize(ctx, auth.OpWritePrescription); err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := requireWaiting(ctx, tx, examinationID); err != nil {
			return err
		}
		return tx.DeletePrescriptionItem(ctx, examinationID, itemID)
	})
}

// Pending returns the dispensing queue: Waiting examinations with at least one item
func (s *PrescriptionService) Pending(ctx context.Context) ([]models.PrescriptionSummary, error) {
	if _, err := auth.Authorize(ctx, auth.OpListPending); err != nil {
		return nil, err
	}
	return s.store.ListPendingPrescriptions(ctx)
}

func validateItem(req *CreateItemRequest) error {
	if req.MedicationID <= 0 {
		return apperr.Invalid("medication_id is required")
	}
	if req.Quantity <= 0 {
		return apperr.Invalid("quantity must be positive, got %d", req.Quantity)
	}
	return nil
}

// requireWaiting locks the examination so items cannot change under a concurrent dispense
func requireWaiting(ctx context.Context, tx *store.Tx, examinationID int64) error {
	e, err := tx.LockExamination(ctx, examinationID)
	if err != nil {
		return err
	}
	if models.IsTerminal(e.PrescriptionStatus) {
		return fmt.Errorf("examination %d is %s: %w", examinationID, e.PrescriptionStatus, apperr.ErrInvalidState)
	}
	return nil
}

func insertItem(ctx context.Context, tx *store.Tx, examinationID int64, req *CreateItemRequest) (*models.PrescriptionItem, error) {
	if _, err := tx.GetMedicationByID(ctx, req.MedicationID); err != nil {
		return nil, err
	}

	item := &models.PrescriptionItem{
		ExaminationID: examinationID,
		MedicationID:  req.MedicationID,
		Quantity:      req.Quantity,
		Directions:    strings.TrimSpace(req.Directions),
	}
	if err := tx.CreatePrescriptionItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
