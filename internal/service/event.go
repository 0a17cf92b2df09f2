package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// recordEvent records an event to the store and pushes it to the sink.
func (s *Service) recordEvent(ctx context.Context, sessionID uuid.UUID, eventType domain.EventType, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String(),
		SessionID: sessionID.String(),
		Ts:        s.now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return err
	}
	if s.sink != nil {
		s.sink.Publish(*event)
	}
	return nil
}

// emit records an event whose loss must not fail the operation that
// produced it.
func (s *Service) emit(ctx context.Context, sessionID uuid.UUID, eventType domain.EventType, payload any) {
	if err := s.recordEvent(ctx, sessionID, eventType, payload); err != nil {
		slog.Warn("failed to record event", "session_id", sessionID, "type", eventType, "error", err)
	}
}

// ListEvents returns a session's audit trail after afterTs (Unix ms),
// optionally filtered by type.
func (s *Service) ListEvents(ctx context.Context, sessionID uuid.UUID, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.custody.Current(ctx, sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, sessionID.String(), afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}
