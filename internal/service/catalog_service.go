package service

import (
	"context"
	"strconv"
	"strings"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages medications and their stock
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateMedicationRequest represents a request to add a medication to the catalog
type CreateMedicationRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	StockQuantity int             `json:"stock_quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// UpdateMedicationRequest changes descriptive fields and price. Stock moves only through Restock and dispensing.
type UpdateMedicationRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

// StockAdjustmentRequest carries a positive stock delta
type StockAdjustmentRequest struct {
	Amount int `json:"amount" binding:"required"`
}

// Create adds a medication
func (s *CatalogService) Create(ctx context.Context, req *CreateMedicationRequest) (*models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpWriteMedication); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid("medication name is required")
	}
	if req.StockQuantity < 0 {
		return nil, apperr.Invalid("stock quantity must not be negative")
	}
	if err := checkMoney("unit price", req.UnitPrice); err != nil {
		return nil, err
	}

	m := &models.Medication{
		Name:          name,
		Description:   req.Description,
		StockQuantity: req.StockQuantity,
		UnitPrice:     req.UnitPrice,
	}
	if err := s.store.CreateMedication(ctx, m); err != nil {
		return nil, err
	}

	util.MedicationStockLevel.WithLabelValues(strconv.FormatInt(m.ID, 10)).Set(float64(m.StockQuantity))
	s.logger.Info("Medication created", zap.Int64("medication_id", m.ID), zap.String("name", m.Name))
	return m, nil
}

// Get retrieves a medication by ID
func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadMedication); err != nil {
		return nil, err
	}
	return s.store.GetMedicationByID(ctx, id)
}

// List returns the whole catalog
func (s *CatalogService) List(ctx context.Context) ([]models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadMedication); err != nil {
		return nil, err
	}
	return s.store.ListMedications(ctx)
}

// Update applies the non-nil fields of req
func (s *CatalogService) Update(ctx context.Context, id int64, req *UpdateMedicationRequest) (*models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpWriteMedication); err != nil {
		return nil, err
	}

	var m *models.Medication
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		m, err = tx.GetMedicationByID(ctx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			if m.Name = trimmed(req.Name); m.Name == "" {
				return apperr.Invalid("medication name is required")
			}
		}
		if req.Description != nil {
			m.Description = *req.Description
		}
		if req.UnitPrice != nil {
			if err := checkMoney("unit price", *req.UnitPrice); err != nil {
				return err
			}
			m.UnitPrice = *req.UnitPrice
		}
		return tx.UpdateMedication(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a medication no prescription references
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if _, err := auth.Authorize(ctx, auth.OpWriteMedication); err != nil {
		return err
	}
	if err := s.store.DeleteMedication(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Medication deleted", zap.Int64("medication_id", id))
	return nil
}

// DecrementStock removes amount units outside of dispensing, e.g. for expired stock
func (s *CatalogService) DecrementStock(ctx context.Context, id int64, amount int) (*models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpAdjustStock); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperr.Invalid("amount must be positive, got %d", amount)
	}

	var m *models.Medication
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.DecrementStock(ctx, id, amount); err != nil {
			return err
		}
		var err error
		m, err = tx.GetMedicationByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordLevel(m, -amount)
	return m, nil
}

// Restock adds amount units to a medication
func (s *CatalogService) Restock(ctx context.Context, id int64, amount int) (*models.Medication, error) {
	if _, err := auth.Authorize(ctx, auth.OpAdjustStock); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperr.Invalid("amount must be positive, got %d", amount)
	}

	var m *models.Medication
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Restock(ctx, id, amount); err != nil {
			return err
		}
		var err error
		m, err = tx.GetMedicationByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordLevel(m, amount)
	return m, nil
}

func (s *CatalogService) recordLevel(m *models.Medication, delta int) {
	util.MedicationStockLevel.WithLabelValues(strconv.FormatInt(m.ID, 10)).Set(float64(m.StockQuantity))
	s.logger.Info("Stock adjusted",
		zap.Int64("medication_id", m.ID),
		zap.Int("delta", delta),
		zap.Int("stock", m.StockQuantity))
}
