package service

import (
	"testing"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCRUD(t *testing.T) {
	c := newClinic(t)

	_, err := c.catalog.Create(admin, &CreateMedicationRequest{Name: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.Create(admin, &CreateMedicationRequest{Name: "X", StockQuantity: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.Create(admin, &CreateMedicationRequest{Name: "X", UnitPrice: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.Create(admin, &CreateMedicationRequest{Name: "X", UnitPrice: decimal.RequireFromString("1250.005")})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.Create(pharmacist, &CreateMedicationRequest{Name: "X"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	m := c.medication(t, "Clopidogrel 75mg", 20, 3500)

	name := "Clopidogrel 75mg tab"
	updated, err := c.catalog.Update(admin, m.ID, &UpdateMedicationRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 20, updated.StockQuantity)
	assert.True(t, decimal.NewFromInt(3500).Equal(updated.UnitPrice))

	subCent := decimal.RequireFromString("3500.125")
	_, err = c.catalog.Update(admin, m.ID, &UpdateMedicationRequest{UnitPrice: &subCent})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	price := decimal.RequireFromString("3750.50")
	updated, err = c.catalog.Update(admin, m.ID, &UpdateMedicationRequest{UnitPrice: &price})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.UnitPrice))

	list, err := c.catalog.List(nurse)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.catalog.Delete(admin, m.ID))
	_, err = c.catalog.Get(nurse, m.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteReferencedMedication(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Lansoprazole 30mg", 10, 2000)
	c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 1})

	assert.ErrorIs(t, c.catalog.Delete(admin, m.ID), apperr.ErrInvalidState)
}

func TestStockAdjustments(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Prednisone 5mg", 3, 400)

	_, err := c.catalog.DecrementStock(admin, m.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.DecrementStock(admin, 404, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = c.catalog.DecrementStock(admin, m.ID, 4)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	got, err := c.catalog.DecrementStock(admin, m.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)

	_, err = c.catalog.Restock(admin, m.ID, -5)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = c.catalog.Restock(pharmacist, m.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err = c.catalog.Restock(admin, m.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, got.StockQuantity)
}

func TestPaymentMethodRegistry(t *testing.T) {
	c := newClinic(t)

	_, err := c.methods.Create(admin, &CreatePaymentMethodRequest{Name: "Cheque", Category: "Paper"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	cash, err := c.methods.Create(admin, &CreatePaymentMethodRequest{Name: "Cash", Category: models.PaymentCategoryCash})
	require.NoError(t, err)
	bpjs, err := c.methods.Create(admin, &CreatePaymentMethodRequest{Name: "BPJS", Category: models.PaymentCategoryGuarantee})
	require.NoError(t, err)
	assert.True(t, cash.Active)

	desc := "national health insurance"
	updated, err := c.methods.Update(admin, bpjs.ID, &UpdatePaymentMethodRequest{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	bad := "Crypto"
	_, err = c.methods.Update(admin, bpjs.ID, &UpdatePaymentMethodRequest{Category: &bad})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	deactivated, err := c.methods.Delete(admin, cash.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	active, err := c.methods.List(pharmacist, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, bpjs.ID, active[0].ID)

	all, err := c.methods.List(admin, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := c.methods.Get(admin, cash.ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "deleted methods stay readable")

	_, err = c.methods.Create(pharmacist, &CreatePaymentMethodRequest{Name: "Debit", Category: models.PaymentCategoryNonCash})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
