package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePrescriptionDispensed = "PRESCRIPTION_DISPENSED"
	EventTypePaymentRecorded       = "PAYMENT_RECORDED"
	EventTypeExaminationCancelled  = "EXAMINATION_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockMovement records how much of one medication a dispense consumed
type StockMovement struct {
	MedicationID   int64  `json:"medication_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	RemainingStock int    `json:"remaining_stock"`
}

// PrescriptionDispensedEvent published after a dispense commits
type PrescriptionDispensedEvent struct {
	BaseEvent
	ExaminationID int64           `json:"examination_id"`
	PatientID     int64           `json:"patient_id"`
	PharmacistID  int64           `json:"pharmacist_id"`
	TotalBilled   decimal.Decimal `json:"total_billed"`
	Movements     []StockMovement `json:"movements"`
}

// PaymentRecordedEvent published when a payment is created or updated
type PaymentRecordedEvent struct {
	BaseEvent
	PaymentID     int64           `json:"payment_id"`
	ExaminationID int64           `json:"examination_id"`
	AmountBilled  decimal.Decimal `json:"amount_billed"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	Status        string          `json:"status"`
}

// ExaminationCancelledEvent published when an examination leaves the dispensing queue
type ExaminationCancelledEvent struct {
	BaseEvent
	ExaminationID int64  `json:"examination_id"`
	Reason        string `json:"reason"`
}
