package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"scheduling-service/internal/events"
	"scheduling-service/internal/ical"
	"scheduling-service/internal/model"
	"scheduling-service/internal/notifier"
	"scheduling-service/internal/repository"
	"scheduling-service/internal/token"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionService interface {
	CreateSession(ctx context.Context, session *model.Session) (*Result, error)
	CancelSession(ctx context.Context, sessionID, therapistID uuid.UUID) (*Result, error)
	GetSessionDetails(ctx context.Context, sessionID uuid.UUID) (*model.SessionDetails, error)
	ListUpcomingSessions(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error)
	ListUserHistory(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	sender      notifier.Sender
	publisher   events.EventPublisher
	appURL      string
}

func NewSessionService(sessionRepo repository.SessionRepository, sender notifier.Sender, publisher events.EventPublisher, appURL string) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		sender:      sender,
		publisher:   publisher,
		appURL:      appURL,
	}
}

// CreateSession books a session, issues its single-use RSVP token and
// emails the client an invitation carrying the accept/decline links and
// a tentative calendar invite.
func (s *sessionService) CreateSession(ctx context.Context, session *model.Session) (*Result, error) {
	rsvpToken := token.New()
	session.Status = model.StatusPending
	session.RSVPToken = &rsvpToken

	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	go s.publisher.PublishSessionCreated(created)

	notified := false
	if details, err := s.sessionRepo.FindDetailsByID(ctx, created.ID); err == nil && details != nil {
		ics := buildInvite(details, ical.StatusTentative)
		msg := notifier.InviteMessage(details, s.appURL, rsvpToken, ics)
		notified = notify(ctx, s.sender, msg)
	}

	return &Result{Session: created, Notified: notified}, nil
}

func (s *sessionService) CancelSession(ctx context.Context, sessionID, therapistID uuid.UUID) (*Result, error) {
	session, err := s.sessionRepo.CancelByTherapist(ctx, sessionID, therapistID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, s.classifyCancelConflict(ctx, sessionID, therapistID)
	}

	go s.publisher.PublishSessionStatusChanged(session)

	notified := false
	if details, err := s.sessionRepo.FindDetailsByID(ctx, session.ID); err == nil && details != nil {
		ics := buildInvite(details, ical.StatusCancelled)
		msg := notifier.CancellationMessage(details, ics)
		notified = notify(ctx, s.sender, msg)
	}

	return &Result{Session: session, Notified: notified}, nil
}

func (s *sessionService) GetSessionDetails(ctx context.Context, sessionID uuid.UUID) (*model.SessionDetails, error) {
	details, err := s.sessionRepo.FindDetailsByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, ErrSessionNotFound
	}
	return details, nil
}

func (s *sessionService) ListUpcomingSessions(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	return s.sessionRepo.ListUpcomingByUser(ctx, userID)
}

func (s *sessionService) ListUserHistory(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	return s.sessionRepo.ListHistoryByUser(ctx, userID)
}

func (s *sessionService) classifyCancelConflict(ctx context.Context, sessionID, therapistID uuid.UUID) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.TherapistID != therapistID {
		return ErrNotSessionOwner
	}
	return ErrInvalidSessionState
}
