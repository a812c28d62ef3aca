package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"scheduling-service/internal/events"
	"scheduling-service/internal/model"
	"scheduling-service/internal/notifier"
	"scheduling-service/internal/repository"
	"scheduling-service/internal/token"
)

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

var (
	// ErrInvalidTokenFormat rejects malformed tokens before any lookup.
	ErrInvalidTokenFormat = errors.New("token has an invalid format")
	// ErrTokenNotFound covers unknown and already-consumed tokens alike;
	// callers cannot tell the two apart.
	ErrTokenNotFound            = errors.New("token not found or already used")
	ErrInvalidAction            = errors.New("action must be accept or decline")
	ErrRescheduleAlreadyPending = errors.New("a reschedule proposal is already pending for this session")
	ErrInvalidSessionState      = errors.New("session state does not allow this operation")
	ErrNotSessionOwner          = errors.New("session belongs to a different therapist")
)

// Result reports a completed state transition. Notified is false when
// the follow-up email could not be delivered; the transition itself has
// already committed and is never rolled back.
type Result struct {
	Session  *model.Session
	Notified bool
}

// RSVPService implements the token-gated session state machine: the
// client's accept/decline of an invitation and the two-party reschedule
// handshake layered on top of it. Possession of the emailed token is the
// sole authorization for the public operations; each token is consumed
// in the same atomic update that applies the transition.
type RSVPService interface {
	Respond(ctx context.Context, rsvpToken, action string) (*Result, error)
	ProposeReschedule(ctx context.Context, sessionID uuid.UUID, startAt, endAt time.Time, proposedBy uuid.UUID) (*Result, error)
	RespondToReschedule(ctx context.Context, proposalToken, action string) (*Result, error)
}

type rsvpService struct {
	sessionRepo repository.SessionRepository
	sender      notifier.Sender
	publisher   events.EventPublisher
	appURL      string
}

func NewRSVPService(sessionRepo repository.SessionRepository, sender notifier.Sender, publisher events.EventPublisher, appURL string) RSVPService {
	return &rsvpService{
		sessionRepo: sessionRepo,
		sender:      sender,
		publisher:   publisher,
		appURL:      appURL,
	}
}

func (s *rsvpService) Respond(ctx context.Context, rsvpToken, action string) (*Result, error) {
	if !token.ValidFormat(rsvpToken) {
		return nil, ErrInvalidTokenFormat
	}

	var next model.Status
	switch action {
	case ActionAccept:
		next = model.StatusConfirmed
	case ActionDecline:
		next = model.StatusDeclined
	default:
		return nil, ErrInvalidAction
	}

	session, err := s.sessionRepo.ConsumeRSVPToken(ctx, rsvpToken, next)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrTokenNotFound
	}

	go s.publisher.PublishSessionStatusChanged(session)

	notified := false
	if details, err := s.sessionRepo.FindDetailsByID(ctx, session.ID); err == nil && details != nil {
		ics := buildInvite(details, inviteStatus(session.Status))
		msg := notifier.RSVPOutcomeMessage(details, action == ActionAccept, ics)
		notified = notify(ctx, s.sender, msg)
	}

	return &Result{Session: session, Notified: notified}, nil
}

func (s *rsvpService) ProposeReschedule(ctx context.Context, sessionID uuid.UUID, startAt, endAt time.Time, proposedBy uuid.UUID) (*Result, error) {
	proposalToken := token.New()

	session, err := s.sessionRepo.CreateRescheduleProposal(ctx, sessionID, proposalToken, startAt, endAt, proposedBy)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, s.classifyProposalConflict(ctx, sessionID, proposedBy)
	}

	go s.publisher.PublishRescheduleProposed(session)

	notified := false
	if details, err := s.sessionRepo.FindDetailsByID(ctx, session.ID); err == nil && details != nil {
		ics := buildInvite(details, inviteStatus(session.Status))
		msg := notifier.RescheduleProposalMessage(details, s.appURL, proposalToken, startAt, ics)
		notified = notify(ctx, s.sender, msg)
	}

	return &Result{Session: session, Notified: notified}, nil
}

func (s *rsvpService) RespondToReschedule(ctx context.Context, proposalToken, action string) (*Result, error) {
	if !token.ValidFormat(proposalToken) {
		return nil, ErrInvalidTokenFormat
	}
	if action != ActionAccept && action != ActionDecline {
		return nil, ErrInvalidAction
	}

	session, err := s.sessionRepo.ConsumeRescheduleToken(ctx, proposalToken, action == ActionAccept)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrTokenNotFound
	}

	go s.publisher.PublishSessionStatusChanged(session)

	notified := false
	if details, err := s.sessionRepo.FindDetailsByID(ctx, session.ID); err == nil && details != nil {
		ics := buildInvite(details, inviteStatus(session.Status))
		msg := notifier.RescheduleOutcomeMessage(details, action == ActionAccept, ics)
		notified = notify(ctx, s.sender, msg)
	}

	return &Result{Session: session, Notified: notified}, nil
}

// classifyProposalConflict explains a zero-row proposal update: the
// session may not exist, belong to someone else, already carry a
// proposal, or sit in a state that cannot be rescheduled.
func (s *rsvpService) classifyProposalConflict(ctx context.Context, sessionID, proposedBy uuid.UUID) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.TherapistID != proposedBy {
		return ErrNotSessionOwner
	}
	if session.Status == model.StatusRescheduleProposed || session.RescheduleToken != nil {
		return ErrRescheduleAlreadyPending
	}
	if !session.Status.Reschedulable() {
		return ErrInvalidSessionState
	}
	// The guarded update lost a race that has since resolved; callers may retry.
	return ErrInvalidSessionState
}
