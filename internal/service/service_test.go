package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.DriverSQLite, ":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func as(role auth.Role) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{ID: 7, Role: role})
}

var (
	admin      = as(auth.RoleAdmin)
	doctor     = as(auth.RoleDoctor)
	nurse      = as(auth.RoleNurse)
	pharmacist = as(auth.RolePharmacist)
)

// clinic wires every service against one database
type clinic struct {
	store     *store.Store
	events    *fakePublisher
	catalog   *CatalogService
	exams     *ExaminationService
	rx        *PrescriptionService
	dispenser *DispensingService
	payments  *PaymentService
	methods   *PaymentMethodService
	patientID int64
	doctorID  int64
}

func newClinic(t *testing.T) *clinic {
	t.Helper()
	s := newTestStore(t)
	events := &fakePublisher{}

	ctx := context.Background()
	patientID, err := s.AddPatient(ctx, "Siti Rahma")
	require.NoError(t, err)
	doctorID, err := s.AddDoctor(ctx, "dr. Hadi")
	require.NoError(t, err)

	return &clinic{
		store:     s,
		events:    events,
		catalog:   NewCatalogService(s),
		exams:     NewExaminationService(s, events),
		rx:        NewPrescriptionService(s),
		dispenser: NewDispensingService(s, nil, events, 5*time.Second),
		payments:  NewPaymentService(s, newFakeIdempotency(), events, time.Hour),
		methods:   NewPaymentMethodService(s),
		patientID: patientID,
		doctorID:  doctorID,
	}
}

func (c *clinic) medication(t *testing.T, name string, stock int, price int64) *models.Medication {
	t.Helper()
	m, err := c.catalog.Create(admin, &CreateMedicationRequest{
		Name:          name,
		StockQuantity: stock,
		UnitPrice:     decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return m
}

func (c *clinic) examination(t *testing.T) *models.Examination {
	t.Helper()
	e, err := c.exams.Create(doctor, &CreateExaminationRequest{
		PatientID: c.patientID,
		DoctorID:  c.doctorID,
		Complaint: "cough",
	})
	require.NoError(t, err)
	return e
}

// prescribe creates an examination holding the given medication quantities
func (c *clinic) prescribe(t *testing.T, items ...CreateItemRequest) *models.Examination {
	t.Helper()
	e := c.examination(t)
	if len(items) > 0 {
		_, err := c.rx.BulkCreate(doctor, e.ID, items)
		require.NoError(t, err)
	}
	return e
}

func (c *clinic) stock(t *testing.T, id int64) int {
	t.Helper()
	m, err := c.store.GetMedicationByID(context.Background(), id)
	require.NoError(t, err)
	return m.StockQuantity
}

type fakePublisher struct {
	mu        sync.Mutex
	dispensed []*models.PrescriptionDispensedEvent
	payments  []*models.PaymentRecordedEvent
	cancelled []*models.ExaminationCancelledEvent
	failWith  error
}

func (f *fakePublisher) PublishPrescriptionDispensed(_ context.Context, e *models.PrescriptionDispensedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispensed = append(f.dispensed, e)
	return f.failWith
}

func (f *fakePublisher) PublishPaymentRecorded(_ context.Context, e *models.PaymentRecordedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, e)
	return f.failWith
}

func (f *fakePublisher) PublishExaminationCancelled(_ context.Context, e *models.ExaminationCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return f.failWith
}

type fakeIdempotency struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{values: map[string]string{}}
}

func (f *fakeIdempotency) GetIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeIdempotency) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case int64:
		f.values[key] = strconv.FormatInt(v, 10)
	}
	return nil
}

func (f *fakeIdempotency) ClaimIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdempotency) DeleteIdempotencyKey(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]string
	err     error
	release int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (f *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	token := "token-" + key
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	f.release++
	return nil
}

var errRedisDown = errors.New("redis: connection refused")
