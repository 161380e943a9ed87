package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"clinic-service/internal/broker"
	"clinic-service/internal/models"
	"clinic-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDeduper struct {
	seen map[string]bool
	err  error
}

func (d *memoryDeduper) MarkEventProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

type memoryMirror struct {
	levels map[int64]int
	writes int
}

func (m *memoryMirror) SetStockLevel(_ context.Context, medicationID int64, level int) error {
	m.levels[medicationID] = level
	m.writes++
	return nil
}

// replaySource delivers a fixed set of messages and then returns
type replaySource struct {
	messages []kafka.Message
	closed   bool
}

func (s *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

func dispensed(eventID string, movements ...models.StockMovement) *models.PrescriptionDispensedEvent {
	return &models.PrescriptionDispensedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   eventID,
			EventType: models.EventTypePrescriptionDispensed,
			Timestamp: time.Now(),
		},
		ExaminationID: 1,
		Movements:     movements,
	}
}

func TestHandlePrescriptionDispensedMirrorsAndAlerts(t *testing.T) {
	mirror := &memoryMirror{levels: map[int64]int{}}
	w := NewStockAlertWorker(&replaySource{}, &memoryDeduper{seen: map[string]bool{}}, mirror, 5)

	before := testutil.ToFloat64(util.LowStockAlertsTotal.WithLabelValues("501"))

	err := w.HandlePrescriptionDispensed(context.Background(), dispensed("evt-a",
		models.StockMovement{MedicationID: 501, Name: "Insulin glargine", Quantity: 2, RemainingStock: 3},
		models.StockMovement{MedicationID: 502, Name: "Metformin 500mg", Quantity: 10, RemainingStock: 90},
	))
	require.NoError(t, err)

	assert.Equal(t, map[int64]int{501: 3, 502: 90}, mirror.levels)
	assert.Equal(t, 3.0, testutil.ToFloat64(util.MedicationStockLevel.WithLabelValues("501")))
	assert.Equal(t, before+1, testutil.ToFloat64(util.LowStockAlertsTotal.WithLabelValues("501")))
}

func TestHandlePrescriptionDispensedSkipsRedelivery(t *testing.T) {
	mirror := &memoryMirror{levels: map[int64]int{}}
	w := NewStockAlertWorker(&replaySource{}, &memoryDeduper{seen: map[string]bool{}}, mirror, 0)
	event := dispensed("evt-b", models.StockMovement{MedicationID: 601, RemainingStock: 40})

	require.NoError(t, w.HandlePrescriptionDispensed(context.Background(), event))
	require.NoError(t, w.HandlePrescriptionDispensed(context.Background(), event))
	assert.Equal(t, 1, mirror.writes)
}

func TestHandlePrescriptionDispensedWithoutRedis(t *testing.T) {
	w := NewStockAlertWorker(&replaySource{}, &memoryDeduper{err: errors.New("redis down")}, nil, 0)
	event := dispensed("evt-c", models.StockMovement{MedicationID: 701, RemainingStock: 12})

	require.NoError(t, w.HandlePrescriptionDispensed(context.Background(), event))
	assert.Equal(t, 12.0, testutil.ToFloat64(util.MedicationStockLevel.WithLabelValues("701")))
}

func TestStartRoutesMessages(t *testing.T) {
	raw, err := json.Marshal(dispensed("evt-d", models.StockMovement{MedicationID: 801, RemainingStock: 7}))
	require.NoError(t, err)

	source := &replaySource{messages: []kafka.Message{{Value: raw}}}
	mirror := &memoryMirror{levels: map[int64]int{}}
	w := NewStockAlertWorker(source, nil, mirror, 0)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, 7, mirror.levels[801])

	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}
