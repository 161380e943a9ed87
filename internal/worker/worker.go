package worker

import (
	"context"
	"strconv"
	"time"

	"clinic-service/internal/broker"
	"clinic-service/internal/models"
	"clinic-service/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// MessageSource delivers broker messages to a handler until ctx ends
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// Deduper records processed event ids so redelivered events are skipped
type Deduper interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// StockMirror keeps a read-side copy of medication stock levels
type StockMirror interface {
	SetStockLevel(ctx context.Context, medicationID int64, level int) error
}

// StockAlertWorker follows dispense events, tracking stock levels and raising low stock alerts
type StockAlertWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	deduper      Deduper
	mirror       StockMirror
	threshold    int
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker. deduper and mirror may be nil.
func NewStockAlertWorker(source MessageSource, deduper Deduper, mirror StockMirror, threshold int) *StockAlertWorker {
	w := &StockAlertWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		deduper:      deduper,
		mirror:       mirror,
		threshold:    threshold,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnPrescriptionDispensed(w.HandlePrescriptionDispensed)
	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker", zap.Int("low_stock_threshold", w.threshold))
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.source.Close()
}

// HandlePrescriptionDispensed records the remaining stock of every medication a dispense touched
func (w *StockAlertWorker) HandlePrescriptionDispensed(ctx context.Context, event *models.PrescriptionDispensedEvent) error {
	if w.deduper != nil && event.EventID != "" {
		first, err := w.deduper.MarkEventProcessed(ctx, event.EventID, processedEventTTL)
		if err != nil {
			w.logger.Warn("Event dedupe unavailable", zap.String("event_id", event.EventID), zap.Error(err))
		} else if !first {
			w.logger.Debug("Skipping redelivered event", zap.String("event_id", event.EventID))
			return nil
		}
	}

	for _, m := range event.Movements {
		id := strconv.FormatInt(m.MedicationID, 10)
		util.MedicationStockLevel.WithLabelValues(id).Set(float64(m.RemainingStock))

		if w.mirror != nil {
			if err := w.mirror.SetStockLevel(ctx, m.MedicationID, m.RemainingStock); err != nil {
				w.logger.Warn("Failed to mirror stock level", zap.Int64("medication_id", m.MedicationID), zap.Error(err))
			}
		}

		if m.RemainingStock <= w.threshold {
			util.LowStockAlertsTotal.WithLabelValues(id).Inc()
			w.logger.Warn("Medication stock low",
				zap.Int64("medication_id", m.MedicationID),
				zap.String("name", m.Name),
				zap.Int("remaining", m.RemainingStock),
				zap.Int("threshold", w.threshold),
				zap.Int64("examination_id", event.ExaminationID))
		}
	}
	return nil
}
