package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"clinic-service/internal/models"
	"clinic-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the transport EventPublisher writes through
type EventWriter interface {
	PublishEvent(ctx context.Context, key, eventType string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	writer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

func examinationKey(id int64) string {
	return fmt.Sprintf("examination-%d", id)
}

// PublishPrescriptionDispensed publishes PrescriptionDispensed event
func (ep *EventPublisher) PublishPrescriptionDispensed(ctx context.Context, event *models.PrescriptionDispensedEvent) error {
	return ep.writer.PublishEvent(ctx, examinationKey(event.ExaminationID), event.EventType, event)
}

// PublishPaymentRecorded publishes PaymentRecorded event
func (ep *EventPublisher) PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error {
	return ep.writer.PublishEvent(ctx, examinationKey(event.ExaminationID), event.EventType, event)
}

// PublishExaminationCancelled publishes ExaminationCancelled event
func (ep *EventPublisher) PublishExaminationCancelled(ctx context.Context, event *models.ExaminationCancelledEvent) error {
	return ep.writer.PublishEvent(ctx, examinationKey(event.ExaminationID), event.EventType, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onPrescriptionDispensed func(context.Context, *models.PrescriptionDispensedEvent) error
	logger                  *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPrescriptionDispensed registers a handler for PrescriptionDispensed events
func (eh *EventHandler) OnPrescriptionDispensed(handler func(context.Context, *models.PrescriptionDispensedEvent) error) {
	eh.onPrescriptionDispensed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePrescriptionDispensed:
		if eh.onPrescriptionDispensed != nil {
			var event models.PrescriptionDispensedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PrescriptionDispensed event: %w", err)
			}
			return eh.onPrescriptionDispensed(ctx, &event)
		}

	case models.EventTypePaymentRecorded, models.EventTypeExaminationCancelled:
		// no local consumers

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
