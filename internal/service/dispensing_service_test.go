package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clinic-service/internal/apperr"
	"clinic-service/internal/models"
	"clinic-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispenseConsumesStockAndCompletes(t *testing.T) {
	c := newClinic(t)
	amox := c.medication(t, "Amoxicillin 500mg", 10, 2500)
	para := c.medication(t, "Paracetamol 500mg", 4, 5000)

	e := c.prescribe(t,
		CreateItemRequest{MedicationID: para.ID, Quantity: 2},
		CreateItemRequest{MedicationID: amox.ID, Quantity: 2, Directions: "3x1 after meals"},
		CreateItemRequest{MedicationID: amox.ID, Quantity: 1},
	)

	res, err := c.dispenser.Dispense(pharmacist, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.PrescriptionStatusCompleted, res.Examination.PrescriptionStatus)
	assert.Len(t, res.Items, 3)
	assert.True(t, decimal.NewFromInt(17500).Equal(res.TotalBilled), "got %s", res.TotalBilled)

	require.Len(t, res.Movements, 2)
	assert.Equal(t, models.StockMovement{MedicationID: amox.ID, Name: amox.Name, Quantity: 3, RemainingStock: 7}, res.Movements[0])
	assert.Equal(t, models.StockMovement{MedicationID: para.ID, Name: para.Name, Quantity: 2, RemainingStock: 2}, res.Movements[1])

	assert.Equal(t, 7, c.stock(t, amox.ID))
	assert.Equal(t, 2, c.stock(t, para.ID))

	require.Len(t, c.events.dispensed, 1)
	ev := c.events.dispensed[0]
	assert.Equal(t, models.EventTypePrescriptionDispensed, ev.EventType)
	assert.Equal(t, e.ID, ev.ExaminationID)
	assert.Equal(t, c.patientID, ev.PatientID)
	assert.NotEmpty(t, ev.EventID)
}

func TestDispenseTwiceDecrementsOnce(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Cetirizine 10mg", 10, 1000)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 4})

	_, err := c.dispenser.Dispense(pharmacist, e.ID)
	require.NoError(t, err)

	_, err = c.dispenser.Dispense(pharmacist, e.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyDispensed)
	assert.Equal(t, 6, c.stock(t, m.ID))
	assert.Len(t, c.events.dispensed, 1)
}

func TestDispenseEmptyPrescription(t *testing.T) {
	c := newClinic(t)
	e := c.prescribe(t)

	_, err := c.dispenser.Dispense(pharmacist, e.ID)
	assert.ErrorIs(t, err, apperr.ErrEmptyPrescription)

	got, err := c.store.GetExaminationByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionStatusWaiting, got.PrescriptionStatus)
}

func TestDispenseInsufficientStockIsAllOrNothing(t *testing.T) {
	c := newClinic(t)
	short := c.medication(t, "Salbutamol inhaler", 1, 45000)
	empty := c.medication(t, "Omeprazole 20mg", 0, 3000)
	plenty := c.medication(t, "Vitamin C 500mg", 10, 500)

	e := c.prescribe(t,
		CreateItemRequest{MedicationID: plenty.ID, Quantity: 1},
		CreateItemRequest{MedicationID: short.ID, Quantity: 2},
		CreateItemRequest{MedicationID: empty.ID, Quantity: 1},
	)

	_, err := c.dispenser.Dispense(pharmacist, e.ID)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	var stockErr *apperr.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []apperr.StockShortage{
		{MedicationID: short.ID, Name: short.Name, Requested: 2, Available: 1},
		{MedicationID: empty.ID, Name: empty.Name, Requested: 1, Available: 0},
	}, stockErr.Shortages)

	assert.Equal(t, 1, c.stock(t, short.ID))
	assert.Equal(t, 0, c.stock(t, empty.ID))
	assert.Equal(t, 10, c.stock(t, plenty.ID))

	got, err := c.store.GetExaminationByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionStatusWaiting, got.PrescriptionStatus)
	assert.Empty(t, c.events.dispensed)
}

func TestConcurrentDispensesShareStock(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Ibuprofen 400mg", 5, 1500)
	first := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 3})
	second := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 3})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = c.dispenser.Dispense(pharmacist, id)
		}(i, id)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, c.stock(t, m.ID))
}

func TestConcurrentDispensesOfOneExamination(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Loratadine 10mg", 10, 2000)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 4})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.dispenser.Dispense(pharmacist, e.ID)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyDispensed)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 6, c.stock(t, m.ID))
}

func TestDispenseTimeoutIsRetryableConflict(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Omeprazole 20mg", 5, 3000)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 3})
	quick := NewDispensingService(c.store, nil, c.events, 200*time.Millisecond)

	// another unit of work holds the only SQLite connection past the dispense timeout
	held, release, finished := make(chan struct{}), make(chan struct{}), make(chan struct{})
	go func() {
		defer close(finished)
		_ = c.store.WithTx(context.Background(), func(tx *store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := quick.Dispense(pharmacist, e.ID)
	close(release)
	<-finished

	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "CONFLICT", apperr.Code(err))
	assert.Equal(t, 5, c.stock(t, m.ID))

	got, err := c.exams.Get(nurse, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionStatusWaiting, got.PrescriptionStatus)

	_, err = quick.Dispense(pharmacist, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.stock(t, m.ID))
}

func TestDispenseRejectsCancelledAndMissing(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Metformin 500mg", 10, 800)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 1})

	_, err := c.exams.Cancel(doctor, e.ID, "patient left")
	require.NoError(t, err)

	_, err = c.dispenser.Dispense(pharmacist, e.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, 10, c.stock(t, m.ID))

	_, err = c.dispenser.Dispense(pharmacist, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDispenseRequiresPharmacist(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Amlodipine 5mg", 10, 1200)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 1})

	for _, ctx := range []context.Context{admin, doctor, nurse} {
		_, err := c.dispenser.Dispense(ctx, e.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	}
	_, err := c.dispenser.Dispense(context.Background(), e.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	assert.Equal(t, 10, c.stock(t, m.ID))
}

func TestDispenseLock(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Captopril 25mg", 10, 700)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 1})

	locker := newFakeLocker()
	d := NewDispensingService(c.store, locker, c.events, time.Second)

	key := fmt.Sprintf("dispense:%d", e.ID)
	locker.held[key] = "someone-else"
	_, err := d.Dispense(pharmacist, e.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 10, c.stock(t, m.ID))

	delete(locker.held, key)
	_, err = d.Dispense(pharmacist, e.ID)
	require.NoError(t, err)
	assert.Empty(t, locker.held, "lock must be released")
	assert.Equal(t, 1, locker.release)
}

func TestDispenseFallsBackWhenLockerFails(t *testing.T) {
	c := newClinic(t)
	m := c.medication(t, "Simvastatin 20mg", 10, 900)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 2})

	locker := newFakeLocker()
	locker.err = errRedisDown
	d := NewDispensingService(c.store, locker, c.events, time.Second)

	_, err := d.Dispense(pharmacist, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, c.stock(t, m.ID))
}

func TestDispensePublishFailureIsNotSurfaced(t *testing.T) {
	c := newClinic(t)
	c.events.failWith = errors.New("kafka: leader not available")
	m := c.medication(t, "Dexamethasone 0.5mg", 10, 300)
	e := c.prescribe(t, CreateItemRequest{MedicationID: m.ID, Quantity: 2})

	_, err := c.dispenser.Dispense(pharmacist, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, c.stock(t, m.ID))
}

func TestAggregateSortsAndSums(t *testing.T) {
	requested, ids := aggregate([]models.PrescriptionLine{
		{MedicationID: 9, Quantity: 1},
		{MedicationID: 3, Quantity: 2},
		{MedicationID: 9, Quantity: 4},
	})
	assert.Equal(t, []int64{3, 9}, ids)
	assert.Equal(t, map[int64]int{3: 2, 9: 5}, requested)
}
