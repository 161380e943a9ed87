package service

import (
	"context"
	"strings"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"go.uber.org/zap"
)

// PaymentMethodService manages the payment method reference list
type PaymentMethodService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewPaymentMethodService creates a new payment method service
func NewPaymentMethodService(store *store.Store) *PaymentMethodService {
	return &PaymentMethodService{store: store, logger: util.GetLogger()}
}

// CreatePaymentMethodRequest represents a request to register a payment method
type CreatePaymentMethodRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
}

// UpdatePaymentMethodRequest applies the non-nil fields to a payment method
type UpdatePaymentMethodRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Active      *bool   `json:"active"`
}

// Create registers an active payment method
func (s *PaymentMethodService) Create(ctx context.Context, req *CreatePaymentMethodRequest) (*models.PaymentMethod, error) {
	if _, err := auth.Authorize(ctx, auth.OpManagePaymentMethod); err != nil {
		return nil, err
	}

	pm := &models.PaymentMethod{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
	}
	if err := validatePaymentMethod(pm); err != nil {
		return nil, err
	}
	if err := s.store.CreatePaymentMethod(ctx, pm); err != nil {
		return nil, err
	}

	s.logger.Info("Payment method created", zap.Int64("payment_method_id", pm.ID), zap.String("category", pm.Category))
	return pm, nil
}

// Get retrieves a payment method by ID, including inactive ones
func (s *PaymentMethodService) Get(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadPaymentMethod); err != nil {
		return nil, err
	}
	return s.store.GetPaymentMethodByID(ctx, id)
}

// List returns active payment methods, or all of them when includeInactive is set
func (s *PaymentMethodService) List(ctx context.Context, includeInactive bool) ([]models.PaymentMethod, error) {
	if _, err := auth.Authorize(ctx, auth.OpReadPaymentMethod); err != nil {
		return nil, err
	}
	return s.store.ListPaymentMethods(ctx, includeInactive)
}

// Update changes a payment method
func (s *PaymentMethodService) Update(ctx context.Context, id int64, req *UpdatePaymentMethodRequest) (*models.PaymentMethod, error) {
	if _, err := auth.Authorize(ctx, auth.OpManagePaymentMethod); err != nil {
		return nil, err
	}

	var pm *models.PaymentMethod
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if pm, err = tx.GetPaymentMethodByID(ctx, id); err != nil {
			return err
		}
		if req.Name != nil {
			pm.Name = trimmed(req.Name)
		}
		if req.Description != nil {
			pm.Description = *req.Description
		}
		if req.Category != nil {
			pm.Category = *req.Category
		}
		if req.Active != nil {
			pm.Active = *req.Active
		}
		if err := validatePaymentMethod(pm); err != nil {
			return err
		}
		return tx.UpdatePaymentMethod(ctx, pm)
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

// Delete deactivates a payment method; payments that used it keep their reference
func (s *PaymentMethodService) Delete(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	if _, err := auth.Authorize(ctx, auth.OpManagePaymentMethod); err != nil {
		return nil, err
	}
	pm, err := s.store.DeactivatePaymentMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Payment method deactivated", zap.Int64("payment_method_id", id))
	return pm, nil
}

func validatePaymentMethod(pm *models.PaymentMethod) error {
	if pm.Name == "" {
		return apperr.Invalid("payment method name is required")
	}
	if !models.ValidPaymentCategory(pm.Category) {
		return apperr.Invalid("unknown payment method category %q", pm.Category)
	}
	return nil
}
