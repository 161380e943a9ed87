package main

import (
	"context"
	"fmt"

	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// seed inserts a small demo data set in one transaction
func seed(ctx context.Context, db *store.Store) error {
	medications := []models.Medication{
		{Name: "Amoxicillin 500mg", Description: "capsule", StockQuantity: 200, UnitPrice: decimal.NewFromInt(2500)},
		{Name: "Paracetamol 500mg", Description: "tablet", StockQuantity: 500, UnitPrice: decimal.NewFromInt(1000)},
		{Name: "Cetirizine 10mg", Description: "tablet", StockQuantity: 120, UnitPrice: decimal.NewFromInt(1500)},
		{Name: "Ambroxol syrup 60ml", Description: "bottle", StockQuantity: 40, UnitPrice: decimal.NewFromInt(12000)},
	}
	methods := []models.PaymentMethod{
		{Name: "Cash", Category: models.PaymentCategoryCash},
		{Name: "Debit card", Category: models.PaymentCategoryNonCash},
		{Name: "Insurance", Category: models.PaymentCategoryGuarantee},
	}

	err := db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.AddPatient(ctx, "Demo Patient"); err != nil {
			return fmt.Errorf("seed patient: %w", err)
		}
		if _, err := tx.AddDoctor(ctx, "dr. Demo"); err != nil {
			return fmt.Errorf("seed doctor: %w", err)
		}
		for i := range medications {
			if err := tx.CreateMedication(ctx, &medications[i]); err != nil {
				return err
			}
		}
		for i := range methods {
			if err := tx.CreatePaymentMethod(ctx, &methods[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	util.GetLogger().Info("Demo data seeded",
		zap.Int("medications", len(medications)),
		zap.Int("payment_methods", len(methods)))
	return nil
}
