package service

import (
	"context"
	"log/slog"
	"time"

	"scheduling-service/internal/ical"
	"scheduling-service/internal/model"
	"scheduling-service/internal/notifier"
)

const notifyTimeout = 10 * time.Second

// inviteStatus maps a session status to the calendar status sent with it.
func inviteStatus(status model.Status) ical.EventStatus {
	switch status {
	case model.StatusConfirmed:
		return ical.StatusConfirmed
	case model.StatusCancelled, model.StatusDeclined:
		return ical.StatusCancelled
	default:
		// pending and reschedule_proposed: not yet agreed by both parties
		return ical.StatusTentative
	}
}

// buildInvite derives the calendar payload for the session's current
// state. The UID is stable across revisions so calendar clients replace
// the event; SEQUENCE comes from the persisted revision counter.
func buildInvite(d *model.SessionDetails, status ical.EventStatus) []byte {
	startAt, endAt := d.StartAt, d.EndAt
	if status == ical.StatusTentative && d.ProposedStartAt != nil && d.ProposedEndAt != nil {
		startAt, endAt = *d.ProposedStartAt, *d.ProposedEndAt
	}

	return ical.Encode(ical.Invite{
		UID:       d.ID.String() + "@scheduling-service",
		Sequence:  d.InviteRevision,
		Status:    status,
		Summary:   d.Title,
		Location:  d.Location,
		StartAt:   startAt,
		EndAt:     endAt,
		Stamp:     d.UpdatedAt,
		Organizer: ical.Participant{Name: d.TherapistName, Email: d.TherapistEmail},
		Attendee:  ical.Participant{Name: d.ClientName, Email: d.ClientEmail},
	})
}

// notify sends msg with a bounded timeout. Delivery failure is logged
// and reported as false; it never fails the surrounding operation.
func notify(ctx context.Context, sender notifier.Sender, msg notifier.Message) bool {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := sender.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Session notification failed",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}
