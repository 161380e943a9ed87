package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medication represents a catalog entry with finite stock
type Medication struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Examination represents a physician's examination of a patient
type Examination struct {
	ID                 int64     `db:"id" json:"id"`
	PatientID          int64     `db:"patient_id" json:"patient_id"`
	DoctorID           int64     `db:"doctor_id" json:"doctor_id"`
	ExaminedAt         time.Time `db:"examined_at" json:"examined_at"`
	Complaint          string    `db:"complaint" json:"complaint"`
	Diagnosis          string    `db:"diagnosis" json:"diagnosis"`
	Recommendation     string    `db:"recommendation" json:"recommendation"`
	PrescriptionStatus string    `db:"prescription_status" json:"prescription_status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem is one prescribed medication line of an examination
type PrescriptionItem struct {
	ID            int64     `db:"id" json:"id"`
	ExaminationID int64     `db:"examination_id" json:"examination_id"`
	MedicationID  int64     `db:"medication_id" json:"medication_id"`
	Quantity      int       `db:"quantity" json:"quantity"`
	Directions    string    `db:"directions" json:"directions"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PrescriptionLine is a prescription item joined with the medication's current name and price.
// LineTotal is computed from the live unit price, so it can change between reads.
type PrescriptionLine struct {
	ID             int64           `db:"id" json:"id"`
	ExaminationID  int64           `db:"examination_id" json:"examination_id"`
	MedicationID   int64           `db:"medication_id" json:"medication_id"`
	MedicationName string          `db:"medication_name" json:"medication_name"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Directions     string          `db:"directions" json:"directions"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal      decimal.Decimal `db:"-" json:"line_total"`
}

// Payment settles a dispensed examination
type Payment struct {
	ID              int64           `db:"id" json:"id"`
	ExaminationID   int64           `db:"examination_id" json:"examination_id"`
	PaymentMethodID *int64          `db:"payment_method_id" json:"payment_method_id,omitempty"`
	AmountBilled    decimal.Decimal `db:"amount_billed" json:"amount_billed"`
	AmountTendered  decimal.Decimal `db:"amount_tendered" json:"amount_tendered"`
	ChangeAmount    decimal.Decimal `db:"change_amount" json:"change_amount"`
	Status          string          `db:"status" json:"status"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentMethod is a reference entry; deletion only deactivates it
type PaymentMethod struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PrescriptionSummary is a queue entry: one examination with its lines and live billed total
type PrescriptionSummary struct {
	Examination Examination        `json:"examination"`
	Items       []PrescriptionLine `json:"items"`
	TotalBilled decimal.Decimal    `json:"total_billed"`
}

// Prescription statuses
const (
	PrescriptionStatusWaiting   = "Waiting"
	PrescriptionStatusCompleted = "Completed"
	PrescriptionStatusCancelled = "Cancelled"
)

// Payment statuses
const (
	PaymentStatusUnpaid   = "Unpaid"
	PaymentStatusPaid     = "Paid"
	PaymentStatusDeferred = "Deferred"
)

// Payment method categories
const (
	PaymentCategoryCash      = "Cash"
	PaymentCategoryNonCash   = "NonCash"
	PaymentCategoryGuarantee = "Guarantee"
)

// ValidPaymentCategory reports whether c is a known payment method category.
func ValidPaymentCategory(c string) bool {
	switch c {
	case PaymentCategoryCash, PaymentCategoryNonCash, PaymentCategoryGuarantee:
		return true
	}
	return false
}

// IsTerminal reports whether a prescription status accepts no further dispensing or item changes.
func IsTerminal(status string) bool {
	return status == PrescriptionStatusCompleted || status == PrescriptionStatusCancelled
}
