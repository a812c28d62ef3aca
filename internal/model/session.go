package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session. Transitions are enforced by
// conditional updates in the repository; the predicates below are the
// single in-process source of truth for which source states an operation
// accepts.
type Status string

const (
	StatusPending            Status = "pending"
	StatusConfirmed          Status = "confirmed"
	StatusDeclined           Status = "declined"
	StatusCancelled          Status = "cancelled"
	StatusRescheduleProposed Status = "reschedule_proposed"
)

// Reschedulable reports whether a reschedule may be proposed from s.
func (s Status) Reschedulable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether the session can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusCancelled
}

const (
	FormatInPerson = "in_person"
	FormatOnline   = "online"
	FormatPhone    = "phone"
)

// Session is a scheduled appointment between a therapist and a client.
//
// RSVPToken and RescheduleToken are single-use bearer secrets; each is set
// when issued and cleared in the same atomic update that consumes it, so a
// session holds at most one active token per kind.
type Session struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TherapistID uuid.UUID `db:"therapist_id" json:"therapist_id"`
	ClientID    uuid.UUID `db:"client_id" json:"client_id"`
	Title       string    `db:"title" json:"title"`
	Format      string    `db:"format" json:"format"`
	Location    string    `db:"location" json:"location,omitempty"`
	StartAt     time.Time `db:"start_at" json:"start_at"`
	EndAt       time.Time `db:"end_at" json:"end_at"`
	Status      Status    `db:"status" json:"status"`

	RSVPToken   *string    `db:"rsvp_token" json:"-"`
	RespondedAt *time.Time `db:"responded_at" json:"responded_at,omitempty"`

	// Reschedule proposal, present only while one is in flight.
	RescheduleToken *string    `db:"reschedule_token" json:"-"`
	ProposedStartAt *time.Time `db:"proposed_start_at" json:"proposed_start_at,omitempty"`
	ProposedEndAt   *time.Time `db:"proposed_end_at" json:"proposed_end_at,omitempty"`
	ProposedBy      *uuid.UUID `db:"proposed_by" json:"proposed_by,omitempty"`
	// PriorStatus is the status to restore when a proposal is declined.
	PriorStatus *Status `db:"prior_status" json:"-"`

	// InviteRevision backs the iCalendar SEQUENCE number. Every
	// status-changing update bumps it, so re-sent invites always carry a
	// strictly greater revision.
	InviteRevision int `db:"invite_revision" json:"invite_revision"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SessionDetails joins the participant names and emails needed for
// notifications and listings.
type SessionDetails struct {
	Session
	TherapistName  string `db:"therapist_name" json:"therapist_name"`
	TherapistEmail string `db:"therapist_email" json:"therapist_email"`
	ClientName     string `db:"client_name" json:"client_name"`
	ClientEmail    string `db:"client_email" json:"client_email"`
}
