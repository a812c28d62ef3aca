package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"scheduling-service/internal/events"
	"scheduling-service/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionCreatedEvent_Marshal(t *testing.T) {
	s := &model.Session{ID: uuid.New(), TherapistID: uuid.New(), ClientID: uuid.New(), StartAt: time.Now()}
	ev := events.SessionCreatedEvent{
		EventType:   "session.created",
		SessionID:   s.ID,
		TherapistID: s.TherapistID,
		ClientID:    s.ClientID,
		StartAt:     s.StartAt,
		EndAt:       s.StartAt.Add(time.Hour),
	}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "session.created", decoded["event_type"])
}

func TestSessionStatusChangedEvent_Marshal(t *testing.T) {
	ev := events.SessionStatusChangedEvent{
		EventType: "session.status_changed",
		SessionID: uuid.New(),
		Status:    model.StatusConfirmed,
		Revision:  2,
		ChangedAt: time.Now(),
	}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "session.status_changed", decoded["event_type"])
	require.Equal(t, "confirmed", decoded["status"])
	require.Equal(t, float64(2), decoded["revision"])
}
