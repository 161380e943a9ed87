package auth

import (
	"context"
	"fmt"

	"clinic-service/internal/apperr"
)

// Operation names a guarded service operation
type Operation string

const (
	OpDispense            Operation = "prescription.dispense"
	OpListPending         Operation = "prescription.pending"
	OpListUnpaid          Operation = "prescription.unpaid"
	OpReadPrescription    Operation = "prescription.read"
	OpWritePrescription   Operation = "prescription.write"
	OpCreateExamination   Operation = "examination.create"
	OpReadExamination     Operation = "examination.read"
	OpCancelExamination   Operation = "examination.cancel"
	OpDeleteExamination   Operation = "examination.delete"
	OpCreatePayment       Operation = "payment.create"
	OpUpdatePayment       Operation = "payment.update"
	OpReadPayment         Operation = "payment.read"
	OpReadMedication      Operation = "medication.read"
	OpWriteMedication     Operation = "medication.write"
	OpAdjustStock         Operation = "medication.stock"
	OpReadPaymentMethod   Operation = "payment_method.read"
	OpManagePaymentMethod Operation = "payment_method.write"
)

var everyone = []Role{RoleAdmin, RoleDoctor, RoleNurse, RolePharmacist}

// Policy maps each operation to the roles allowed to invoke it.
var Policy = map[Operation][]Role{
	OpDispense:            {RolePharmacist},
	OpListPending:         {RolePharmacist, RoleAdmin},
	OpListUnpaid:          {RolePharmacist, RoleAdmin},
	OpReadPrescription:    everyone,
	OpWritePrescription:   {RoleDoctor},
	OpCreateExamination:   {RoleDoctor},
	OpReadExamination:     everyone,
	OpCancelExamination:   {RoleAdmin, RoleDoctor},
	OpDeleteExamination:   {RoleAdmin},
	OpCreatePayment:       {RolePharmacist, RoleAdmin},
	OpUpdatePayment:       {RolePharmacist, RoleAdmin},
	OpReadPayment:         {RolePharmacist, RoleAdmin},
	OpReadMedication:      everyone,
	OpWriteMedication:     {RoleAdmin},
	OpAdjustStock:         {RoleAdmin},
	OpReadPaymentMethod:   {RolePharmacist, RoleAdmin},
	OpManagePaymentMethod: {RoleAdmin},
}

// Authorize checks the principal in ctx against Policy and returns it.
func Authorize(ctx context.Context, op Operation) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, fmt.Errorf("%s: %w", op, apperr.ErrUnauthenticated)
	}
	for _, r := range Policy[op] {
		if p.Role == r {
			return p, nil
		}
	}
	return Principal{}, fmt.Errorf("role %s may not perform %s: %w", p.Role, op, apperr.ErrForbidden)
}
