// Package eventbridge publishes audit events to an EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"mindmesh/domain/events"
)

const eventSource = "mindmesh.authority"

// Publisher implements ports.EventPublisher on an EventBridge bus. Publish
// failures are surfaced but callers treat audit delivery as best-effort.
type Publisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewPublisher creates an EventBridge-backed publisher
func NewPublisher(client *eventbridge.Client, busName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
		logger:  logger,
	}
}

// Publish sends one domain event to the bus
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.GetEventType(), err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(event.GetEventType()),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(event.GetTimestamp()),
			},
		},
	})
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Error(err),
		)
		return err
	}
	if out.FailedEntryCount > 0 {
		p.logger.Warn("Event entry rejected by bus",
			zap.String("eventType", event.GetEventType()),
			zap.Int32("failed", out.FailedEntryCount),
		)
		return fmt.Errorf("event %s rejected by bus", event.GetEventType())
	}

	p.logger.Debug("Event published",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
	)
	return nil
}

// NopPublisher discards events, used when no bus is configured
type NopPublisher struct{}

// Publish implements ports.EventPublisher as a no-op
func (NopPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return nil
}
