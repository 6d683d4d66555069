package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"quote-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing quote lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishQuoteIssued publishes QuoteIssued event
func (ep *EventPublisher) PublishQuoteIssued(ctx context.Context, event *models.QuoteIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

// PublishQuoteRedeemed publishes QuoteRedeemed event
func (ep *EventPublisher) PublishQuoteRedeemed(ctx context.Context, event *models.QuoteRedeemedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

// PublishQuoteReleased publishes QuoteReleased event
func (ep *EventPublisher) PublishQuoteReleased(ctx context.Context, event *models.QuoteReleasedEvent) error {
	return ep.producer.PublishEvent(ctx, quoteKey(event.QuoteID), event)
}

func quoteKey(quoteID string) string {
	return fmt.Sprintf("quote-%s", quoteID)
}

// EventHandler routes incoming provider events
type EventHandler struct {
	onPaymentFailed func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentFailed registers a handler for PaymentFailed events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return eh.onPaymentFailed(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
