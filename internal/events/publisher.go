package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"scheduling-service/internal/model"
)

// EventPublisher fans session lifecycle events out to interested
// services (notification worker, analytics). Publishing is best-effort:
// the session record is the source of truth, never the event stream.
type EventPublisher interface {
	PublishSessionCreated(session *model.Session) error
	PublishSessionStatusChanged(session *model.Session) error
	PublishRescheduleProposed(session *model.Session) error
}

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(natsURL string) (EventPublisher, error) {
	nc, err := nats.Connect(natsURL)

	if err != nil {
		return nil, err
	}

	return &NatsPublisher{conn: nc}, nil
}

type SessionCreatedEvent struct {
	EventType   string    `json:"event_type"`
	SessionID   uuid.UUID `json:"session_id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	ClientID    uuid.UUID `json:"client_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

type SessionStatusChangedEvent struct {
	EventType string       `json:"event_type"`
	SessionID uuid.UUID    `json:"session_id"`
	Status    model.Status `json:"status"`
	Revision  int          `json:"revision"`
	ChangedAt time.Time    `json:"changed_at"`
}

type RescheduleProposedEvent struct {
	EventType       string    `json:"event_type"`
	SessionID       uuid.UUID `json:"session_id"`
	ProposedStartAt time.Time `json:"proposed_start_at"`
	ProposedEndAt   time.Time `json:"proposed_end_at"`
	ProposedBy      uuid.UUID `json:"proposed_by"`
}

func (p *NatsPublisher) PublishSessionCreated(session *model.Session) error {
	event := SessionCreatedEvent{
		EventType:   "session.created",
		SessionID:   session.ID,
		TherapistID: session.TherapistID,
		ClientID:    session.ClientID,
		StartAt:     session.StartAt,
		EndAt:       session.EndAt,
	}
	return p.publish("session.created", event)
}

func (p *NatsPublisher) PublishSessionStatusChanged(session *model.Session) error {
	event := SessionStatusChangedEvent{
		EventType: "session.status_changed",
		SessionID: session.ID,
		Status:    session.Status,
		Revision:  session.InviteRevision,
		ChangedAt: session.UpdatedAt,
	}
	return p.publish("session.status_changed", event)
}

func (p *NatsPublisher) PublishRescheduleProposed(session *model.Session) error {
	if session.ProposedStartAt == nil || session.ProposedEndAt == nil || session.ProposedBy == nil {
		return nil
	}
	event := RescheduleProposedEvent{
		EventType:       "session.reschedule_proposed",
		SessionID:       session.ID,
		ProposedStartAt: *session.ProposedStartAt,
		ProposedEndAt:   *session.ProposedEndAt,
		ProposedBy:      *session.ProposedBy,
	}
	return p.publish("session.reschedule_proposed", event)
}

func (p *NatsPublisher) publish(subject string, event any) error {
	eventJSON, err := json.Marshal(event)

	if err != nil {
		slog.Error("Error marshalling event JSON", slog.String("subject", subject), slog.String("error", err.Error()))
		return err
	}

	if err := p.conn.Publish(subject, eventJSON); err != nil {
		slog.Error("Error publishing to NATS", slog.String("subject", subject), slog.String("error", err.Error()))
		return err
	}

	return nil
}
