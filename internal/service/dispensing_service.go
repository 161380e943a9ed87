package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"clinic-service/internal/apperr"
	"clinic-service/internal/auth"
	"clinic-service/internal/models"
	"clinic-service/internal/store"
	"clinic-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultDispenseTimeout = 10 * time.Second

// DispensingService turns a Waiting prescription into a Completed one, consuming stock
type DispensingService struct {
	store          *store.Store
	locker         Locker
	eventPublisher EventPublisher
	timeout        time.Duration
	logger         *zap.Logger
}

// NewDispensingService creates a new dispensing service.
// locker and eventPublisher may be nil; the database row locks alone then guard a dispense.
func NewDispensingService(store *store.Store, locker Locker, eventPublisher EventPublisher, timeout time.Duration) *DispensingService {
	if timeout <= 0 {
		timeout = defaultDispenseTimeout
	}
	return &DispensingService{
		store:          store,
		locker:         locker,
		eventPublisher: publisherOrNop(eventPublisher),
		timeout:        timeout,
		logger:         util.GetLogger(),
	}
}

// DispenseResult is the outcome of a committed dispense
type DispenseResult struct {
	Examination *models.Examination       `json:"examination"`
	Items       []models.PrescriptionLine `json:"items"`
	Movements   []models.StockMovement    `json:"movements"`
	TotalBilled decimal.Decimal           `json:"total_billed"`
}

// Dispense consumes the stock for every item of an examination and marks it Completed.
// Either every decrement and the status change commit together or nothing changes.
func (s *DispensingService) Dispense(ctx context.Context, examinationID int64) (result *DispenseResult, err error) {
	ctx, span := util.StartSpan(ctx, "DispensingService.Dispense")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.DispenseLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			util.DispenseFailedTotal.WithLabelValues(failureReason(err)).Inc()
		}
	}()

	principal, err := auth.Authorize(ctx, auth.OpDispense)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.acquire(ctx, examinationID)
	if err != nil {
		return nil, err
	}
	defer release()

	result = &DispenseResult{}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.LockExamination(ctx, examinationID)
		if err != nil {
			return err
		}
		switch e.PrescriptionStatus {
		case models.PrescriptionStatusCompleted:
			return fmt.Errorf("examination %d: %w", examinationID, apperr.ErrAlreadyDispensed)
		case models.PrescriptionStatusCancelled:
			return fmt.Errorf("examination %d is cancelled: %w", examinationID, apperr.ErrInvalidState)
		}

		lines, err := tx.ListPrescriptionLines(ctx, examinationID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("examination %d: %w", examinationID, apperr.ErrEmptyPrescription)
		}

		requested, ids := aggregate(lines)
		meds, err := tx.LockMedications(ctx, ids)
		if err != nil {
			return err
		}
		if err := checkStock(requested, ids, meds); err != nil {
			return err
		}

		movements := make([]models.StockMovement, 0, len(meds))
		for _, m := range meds {
			remaining, err := tx.DecrementStock(ctx, m.ID, requested[m.ID])
			if err != nil {
				return err
			}
			movements = append(movements, models.StockMovement{
				MedicationID:   m.ID,
				Name:           m.Name,
				Quantity:       requested[m.ID],
				RemainingStock: remaining,
			})
		}

		if err := tx.TransitionPrescriptionStatus(ctx, examinationID,
			models.PrescriptionStatusWaiting, models.PrescriptionStatusCompleted); err != nil {
			return err
		}
		if e, err = tx.GetExaminationByID(ctx, examinationID); err != nil {
			return err
		}

		result.Examination = e
		result.Items = lines
		result.Movements = movements
		result.TotalBilled = store.SumLines(lines)
		return nil
	})
	if err != nil {
		s.logger.Warn("Dispense rejected",
			zap.Int64("examination_id", examinationID),
			zap.String("reason", apperr.Code(err)),
			zap.Error(err))
		return nil, err
	}

	util.DispensesTotal.Inc()
	for _, m := range result.Movements {
		id := strconv.FormatInt(m.MedicationID, 10)
		util.UnitsDispensedTotal.WithLabelValues(id).Add(float64(m.Quantity))
		util.MedicationStockLevel.WithLabelValues(id).Set(float64(m.RemainingStock))
	}

	s.logger.Info("Prescription dispensed",
		zap.Int64("examination_id", examinationID),
		zap.Int64("pharmacist_id", principal.ID),
		zap.Int("medications", len(result.Movements)),
		zap.String("total_billed", result.TotalBilled.String()))

	s.publish(ctx, principal, result)
	return result, nil
}

// acquire takes the optional distributed lock. Redis trouble degrades to the row lock alone.
func (s *DispensingService) acquire(ctx context.Context, examinationID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("dispense:%d", examinationID)
	token, ok, err := s.locker.AcquireLock(ctx, key, s.timeout+5*time.Second)
	if err != nil {
		s.logger.Warn("Dispense lock unavailable, relying on row locks", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("dispense of examination %d already in progress: %w", examinationID, apperr.ErrConflict)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			s.logger.Warn("Failed to release dispense lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *DispensingService) publish(ctx context.Context, principal auth.Principal, result *DispenseResult) {
	event := &models.PrescriptionDispensedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePrescriptionDispensed),
		ExaminationID: result.Examination.ID,
		PatientID:     result.Examination.PatientID,
		PharmacistID:  principal.ID,
		TotalBilled:   result.TotalBilled,
		Movements:     result.Movements,
	}
	if err := s.eventPublisher.PublishPrescriptionDispensed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PrescriptionDispensed event",
			zap.Int64("examination_id", event.ExaminationID),
			zap.Error(err))
	}
}

// aggregate sums quantities per medication and returns the medication ids in ascending order
func aggregate(lines []models.PrescriptionLine) (map[int64]int, []int64) {
	requested := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, seen := requested[l.MedicationID]; !seen {
			ids = append(ids, l.MedicationID)
		}
		requested[l.MedicationID] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return requested, ids
}

// checkStock reports every short medication at once
func checkStock(requested map[int64]int, ids []int64, meds []models.Medication) error {
	byID := make(map[int64]models.Medication, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	var shortages []apperr.StockShortage
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return apperr.NotFound("medication", id)
		}
		if m.StockQuantity < requested[id] {
			shortages = append(shortages, apperr.StockShortage{
				MedicationID: id,
				Name:         m.Name,
				Requested:    requested[id],
				Available:    m.StockQuantity,
			})
		}
	}
	if len(shortages) > 0 {
		return &apperr.InsufficientStockError{Shortages: shortages}
	}
	return nil
}
