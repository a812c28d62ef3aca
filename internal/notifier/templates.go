package notifier

import (
	"fmt"
	"time"

	"scheduling-service/internal/model"
)

const timeLayout = "Monday, 2 January 2006 at 15:04 MST"

func body(heading, text, linkLabel, linkURL string) string {
	button := ""
	if linkURL != "" {
		button = fmt.Sprintf(
			`<p style="margin:24px 0;"><a href="%s" style="background-color:#4f6ef7;color:#ffffff;text-decoration:none;padding:12px 28px;border-radius:6px;font-weight:600;">%s</a></p>`,
			linkURL, linkLabel,
		)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:32px;background-color:#f5f6fa;font-family:Arial,Helvetica,sans-serif;color:#1f2937;">
  <div style="max-width:520px;margin:0 auto;background-color:#ffffff;border-radius:8px;padding:32px;">
    <h2 style="margin:0 0 16px 0;font-size:20px;">%s</h2>
    <p style="margin:0;font-size:15px;line-height:1.6;">%s</p>
    %s
  </div>
</body>
</html>`, heading, text, button)
}

// InviteMessage is the initial invitation sent to the client, carrying
// the accept/decline links and the calendar attachment.
func InviteMessage(d *model.SessionDetails, appURL, rsvpToken string, ics []byte) Message {
	accept := fmt.Sprintf("%s/v1/rsvp?token=%s&action=accept", appURL, rsvpToken)
	decline := fmt.Sprintf("%s/v1/rsvp?token=%s&action=decline", appURL, rsvpToken)
	text := fmt.Sprintf(
		"%s has invited you to a session on %s. <a href=\"%s\">Accept</a> or <a href=\"%s\">decline</a> the invitation.",
		d.TherapistName, d.StartAt.Format(timeLayout), accept, decline,
	)
	return Message{
		To:        d.ClientEmail,
		Subject:   fmt.Sprintf("Session invitation from %s", d.TherapistName),
		HTML:      body("You have a session invitation", text, "Accept invitation", accept),
		InviteICS: ics,
	}
}

// RSVPOutcomeMessage tells the therapist how the client responded.
func RSVPOutcomeMessage(d *model.SessionDetails, accepted bool, ics []byte) Message {
	verb := "declined"
	if accepted {
		verb = "accepted"
	}
	text := fmt.Sprintf("%s has %s the session scheduled for %s.",
		d.ClientName, verb, d.StartAt.Format(timeLayout))
	return Message{
		To:        d.TherapistEmail,
		Subject:   fmt.Sprintf("%s %s your session invitation", d.ClientName, verb),
		HTML:      body("Session invitation "+verb, text, "", ""),
		InviteICS: ics,
	}
}

// RescheduleProposalMessage asks the client to accept or decline a new time.
func RescheduleProposalMessage(d *model.SessionDetails, appURL, proposalToken string, proposedStart time.Time, ics []byte) Message {
	accept := fmt.Sprintf("%s/v1/reschedule/respond?token=%s&action=accept", appURL, proposalToken)
	decline := fmt.Sprintf("%s/v1/reschedule/respond?token=%s&action=decline", appURL, proposalToken)
	text := fmt.Sprintf(
		"%s has proposed moving your session to %s. The original time of %s is kept until you respond. <a href=\"%s\">Accept</a> or <a href=\"%s\">decline</a> the new time.",
		d.TherapistName, proposedStart.Format(timeLayout), d.StartAt.Format(timeLayout), accept, decline,
	)
	return Message{
		To:        d.ClientEmail,
		Subject:   "Your session has a proposed new time",
		HTML:      body("Proposed new session time", text, "Accept new time", accept),
		InviteICS: ics,
	}
}

// RescheduleOutcomeMessage reports the client's decision to the proposer.
func RescheduleOutcomeMessage(d *model.SessionDetails, accepted bool, ics []byte) Message {
	if accepted {
		text := fmt.Sprintf("%s accepted the new time. The session is now scheduled for %s.",
			d.ClientName, d.StartAt.Format(timeLayout))
		return Message{
			To:        d.TherapistEmail,
			Subject:   "Reschedule accepted",
			HTML:      body("New time confirmed", text, "", ""),
			InviteICS: ics,
		}
	}
	text := fmt.Sprintf("%s declined the new time. The session stays at %s.",
		d.ClientName, d.StartAt.Format(timeLayout))
	return Message{
		To:        d.TherapistEmail,
		Subject:   "Reschedule declined",
		HTML:      body("Proposed time declined", text, "", ""),
		InviteICS: ics,
	}
}

// CancellationMessage tells the client the therapist cancelled the session.
func CancellationMessage(d *model.SessionDetails, ics []byte) Message {
	text := fmt.Sprintf("%s has cancelled the session that was scheduled for %s.",
		d.TherapistName, d.StartAt.Format(timeLayout))
	return Message{
		To:        d.ClientEmail,
		Subject:   "Your session has been cancelled",
		HTML:      body("Session cancelled", text, "", ""),
		InviteICS: ics,
	}
}
