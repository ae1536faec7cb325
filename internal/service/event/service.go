package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
)

// EventService records domain events in the outbox. Delivery is the relay
// worker's job.
type EventService struct {
	outboxRepo repository.OutboxRepository
}

func NewEventService(outboxRepo repository.OutboxRepository) *EventService {
	return &EventService{outboxRepo: outboxRepo}
}

// Emit stores payload as a pending event of eventType.
func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) (*model.OutboxEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create outbox event: %w", err)
	}
	return event, nil
}
