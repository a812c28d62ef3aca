package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"scheduling-service/internal/model"
	"scheduling-service/internal/notifier"
	"scheduling-service/internal/service"
	"scheduling-service/internal/token"
)

// fakeSessionRepo mirrors the conditional-update semantics of the
// postgres repository: each consuming method checks its guard and
// mutates under one lock, so concurrent calls serialize exactly like
// a single atomic UPDATE would.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	findErr  error
}

func newFakeSessionRepo(sessions ...*model.Session) *fakeSessionRepo {
	r := &fakeSessionRepo{sessions: make(map[uuid.UUID]*model.Session)}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	r.sessions[session.ID] = session
	cp := *session
	return &cp, nil
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) FindDetailsByID(ctx context.Context, id uuid.UUID) (*model.SessionDetails, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.SessionDetails{
		Session:        *s,
		TherapistName:  "Dana Reyes",
		TherapistEmail: "dana@example.com",
		ClientName:     "Sam Okafor",
		ClientEmail:    "sam@example.com",
	}, nil
}

func (r *fakeSessionRepo) ListUpcomingByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	return []model.SessionDetails{}, nil
}

func (r *fakeSessionRepo) ListHistoryByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	return []model.SessionDetails{}, nil
}

func (r *fakeSessionRepo) ConsumeRSVPToken(ctx context.Context, tok string, next model.Status) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RSVPToken != nil && *s.RSVPToken == tok && s.Status == model.StatusPending {
			now := time.Now()
			s.Status = next
			s.RSVPToken = nil
			s.RespondedAt = &now
			s.InviteRevision++
			s.UpdatedAt = now
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) CreateRescheduleProposal(ctx context.Context, sessionID uuid.UUID, proposalToken string, startAt, endAt time.Time, proposedBy uuid.UUID) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.TherapistID != proposedBy || !s.Status.Reschedulable() || s.RescheduleToken != nil {
		return nil, nil
	}
	prior := s.Status
	s.PriorStatus = &prior
	s.Status = model.StatusRescheduleProposed
	s.RescheduleToken = &proposalToken
	s.ProposedStartAt = &startAt
	s.ProposedEndAt = &endAt
	s.ProposedBy = &proposedBy
	s.InviteRevision++
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) ConsumeRescheduleToken(ctx context.Context, tok string, accept bool) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RescheduleToken != nil && *s.RescheduleToken == tok && s.Status == model.StatusRescheduleProposed {
			now := time.Now()
			if accept {
				s.StartAt = *s.ProposedStartAt
				s.EndAt = *s.ProposedEndAt
				s.Status = model.StatusConfirmed
			} else {
				s.Status = *s.PriorStatus
			}
			s.RescheduleToken = nil
			s.ProposedStartAt = nil
			s.ProposedEndAt = nil
			s.ProposedBy = nil
			s.PriorStatus = nil
			s.RespondedAt = &now
			s.InviteRevision++
			s.UpdatedAt = now
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) CancelByTherapist(ctx context.Context, sessionID, therapistID uuid.UUID) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.TherapistID != therapistID || s.Status.Terminal() {
		return nil, nil
	}
	s.Status = model.StatusCancelled
	s.RSVPToken = nil
	s.RescheduleToken = nil
	s.ProposedStartAt = nil
	s.ProposedEndAt = nil
	s.ProposedBy = nil
	s.PriorStatus = nil
	s.InviteRevision++
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []notifier.Message
	fail bool
}

func (c *captureSender) Send(ctx context.Context, msg notifier.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("smtp unreachable")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) messages() []notifier.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notifier.Message(nil), c.sent...)
}

type nopPublisher struct{}

func (nopPublisher) PublishSessionCreated(*model.Session) error       { return nil }
func (nopPublisher) PublishSessionStatusChanged(*model.Session) error { return nil }
func (nopPublisher) PublishRescheduleProposed(*model.Session) error   { return nil }

func pendingSession(t *testing.T) (*model.Session, string) {
	t.Helper()
	tok := token.New()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Session{
		ID:          uuid.New(),
		TherapistID: uuid.New(),
		ClientID:    uuid.New(),
		Title:       "Hypnotherapy session",
		Format:      model.FormatInPerson,
		Location:    "12 Harley Street, London",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		Status:      model.StatusPending,
		RSVPToken:   &tok,
		UpdatedAt:   time.Now(),
	}, tok
}

func TestRespond_AcceptConfirmsAndConsumesToken(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	sender := &captureSender{}
	svc := service.NewRSVPService(repo, sender, nopPublisher{}, "http://app.test")

	result, err := svc.Respond(context.Background(), tok, service.ActionAccept)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, result.Session.Status)
	require.Nil(t, result.Session.RSVPToken)
	require.NotNil(t, result.Session.RespondedAt)
	require.Equal(t, 1, result.Session.InviteRevision)
	require.True(t, result.Notified)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "dana@example.com", msgs[0].To)
	require.Contains(t, string(msgs[0].InviteICS), "STATUS:CONFIRMED")
	require.Contains(t, string(msgs[0].InviteICS), "SEQUENCE:1")
}

func TestRespond_DeclineCancelsInvite(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	sender := &captureSender{}
	svc := service.NewRSVPService(repo, sender, nopPublisher{}, "http://app.test")

	result, err := svc.Respond(context.Background(), tok, service.ActionDecline)
	require.NoError(t, err)
	require.Equal(t, model.StatusDeclined, result.Session.Status)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Contains(t, string(msgs[0].InviteICS), "METHOD:CANCEL")
}

func TestRespond_SecondUseOfTokenFails(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	_, err := svc.Respond(context.Background(), tok, service.ActionAccept)
	require.NoError(t, err)

	for _, action := range []string{service.ActionAccept, service.ActionDecline} {
		_, err = svc.Respond(context.Background(), tok, action)
		require.ErrorIs(t, err, service.ErrTokenNotFound)
	}
}

func TestRespond_MalformedTokenRejectedWithoutLookup(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.findErr = errors.New("storage must not be touched")
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	for _, tok := range []string{"", "short", token.New() + "ff"} {
		_, err := svc.Respond(context.Background(), tok, service.ActionAccept)
		require.ErrorIs(t, err, service.ErrInvalidTokenFormat)
	}
}

func TestRespond_UnknownActionRejected(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	_, err := svc.Respond(context.Background(), tok, "maybe")
	require.ErrorIs(t, err, service.ErrInvalidAction)
	// nothing consumed
	require.NotNil(t, sess.RSVPToken)
}

func TestRespond_ConcurrentOnlyOneSucceeds(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Respond(context.Background(), tok, service.ActionAccept)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, service.ErrTokenNotFound)
		}
	}
	require.Equal(t, 1, succeeded)
}

func TestRespond_NotificationFailureIsDegradedSuccess(t *testing.T) {
	sess, tok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	sender := &captureSender{fail: true}
	svc := service.NewRSVPService(repo, sender, nopPublisher{}, "http://app.test")

	result, err := svc.Respond(context.Background(), tok, service.ActionAccept)
	require.NoError(t, err)
	require.False(t, result.Notified)
	// the transition committed regardless
	require.Equal(t, model.StatusConfirmed, result.Session.Status)
}

func TestProposeReschedule_HappyPath(t *testing.T) {
	sess, _ := pendingSession(t)
	sess.Status = model.StatusConfirmed
	sess.RSVPToken = nil
	repo := newFakeSessionRepo(sess)
	sender := &captureSender{}
	svc := service.NewRSVPService(repo, sender, nopPublisher{}, "http://app.test")

	newStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	result, err := svc.ProposeReschedule(context.Background(), sess.ID, newStart, newStart.Add(time.Hour), sess.TherapistID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRescheduleProposed, result.Session.Status)
	require.NotNil(t, result.Session.RescheduleToken)
	require.Equal(t, model.StatusConfirmed, *result.Session.PriorStatus)
	// the confirmed schedule is untouched until the client accepts
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), result.Session.StartAt)
	require.Equal(t, newStart, *result.Session.ProposedStartAt)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "sam@example.com", msgs[0].To)
	require.Contains(t, string(msgs[0].InviteICS), "STATUS:TENTATIVE")
	// the tentative invite carries the proposed time, not the current one
	require.Contains(t, string(msgs[0].InviteICS), "DTSTART:20250302T140000Z")
}

func TestProposeReschedule_ConflictingProposalRejected(t *testing.T) {
	sess, _ := pendingSession(t)
	sess.Status = model.StatusConfirmed
	sess.RSVPToken = nil
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	firstStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	first, err := svc.ProposeReschedule(context.Background(), sess.ID, firstStart, firstStart.Add(time.Hour), sess.TherapistID)
	require.NoError(t, err)
	firstToken := *first.Session.RescheduleToken

	secondStart := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	_, err = svc.ProposeReschedule(context.Background(), sess.ID, secondStart, secondStart.Add(time.Hour), sess.TherapistID)
	require.ErrorIs(t, err, service.ErrRescheduleAlreadyPending)

	// the first proposal survives untouched
	current, err := repo.FindByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, firstToken, *current.RescheduleToken)
	require.Equal(t, firstStart, *current.ProposedStartAt)
}

func TestProposeReschedule_WrongTherapistRejected(t *testing.T) {
	sess, _ := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	start := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	_, err := svc.ProposeReschedule(context.Background(), sess.ID, start, start.Add(time.Hour), uuid.New())
	require.ErrorIs(t, err, service.ErrNotSessionOwner)
}

func TestProposeReschedule_TerminalSessionRejected(t *testing.T) {
	sess, _ := pendingSession(t)
	sess.Status = model.StatusCancelled
	sess.RSVPToken = nil
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	start := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	_, err := svc.ProposeReschedule(context.Background(), sess.ID, start, start.Add(time.Hour), sess.TherapistID)
	require.ErrorIs(t, err, service.ErrInvalidSessionState)
}

func TestProposeReschedule_UnknownSession(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	start := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	_, err := svc.ProposeReschedule(context.Background(), uuid.New(), start, start.Add(time.Hour), uuid.New())
	require.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestRespondToReschedule_AcceptOverwritesSchedule(t *testing.T) {
	sess, _ := pendingSession(t)
	sess.Status = model.StatusConfirmed
	sess.RSVPToken = nil
	repo := newFakeSessionRepo(sess)
	sender := &captureSender{}
	svc := service.NewRSVPService(repo, sender, nopPublisher{}, "http://app.test")

	newStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	proposed, err := svc.ProposeReschedule(context.Background(), sess.ID, newStart, newStart.Add(time.Hour), sess.TherapistID)
	require.NoError(t, err)
	revisionAfterProposal := proposed.Session.InviteRevision

	result, err := svc.RespondToReschedule(context.Background(), *proposed.Session.RescheduleToken, service.ActionAccept)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, result.Session.Status)
	require.Equal(t, newStart, result.Session.StartAt)
	require.Equal(t, newStart.Add(time.Hour), result.Session.EndAt)
	require.Nil(t, result.Session.RescheduleToken)
	require.Nil(t, result.Session.ProposedStartAt)
	require.Greater(t, result.Session.InviteRevision, revisionAfterProposal)
}

func TestRespondToReschedule_DeclineRestoresPriorState(t *testing.T) {
	for _, prior := range []model.Status{model.StatusPending, model.StatusConfirmed} {
		sess, _ := pendingSession(t)
		sess.Status = prior
		origStart, origEnd := sess.StartAt, sess.EndAt
		repo := newFakeSessionRepo(sess)
		svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

		newStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
		proposed, err := svc.ProposeReschedule(context.Background(), sess.ID, newStart, newStart.Add(time.Hour), sess.TherapistID)
		require.NoError(t, err)

		result, err := svc.RespondToReschedule(context.Background(), *proposed.Session.RescheduleToken, service.ActionDecline)
		require.NoError(t, err)
		require.Equal(t, prior, result.Session.Status)
		require.Equal(t, origStart, result.Session.StartAt)
		require.Equal(t, origEnd, result.Session.EndAt)
		require.Nil(t, result.Session.ProposedStartAt)
	}
}

func TestRespondToReschedule_TokenNamespacesAreDistinct(t *testing.T) {
	sess, rsvpTok := pendingSession(t)
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	// a valid RSVP token is not a valid reschedule token and vice versa
	_, err := svc.RespondToReschedule(context.Background(), rsvpTok, service.ActionAccept)
	require.ErrorIs(t, err, service.ErrTokenNotFound)

	newStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	proposed, err := svc.ProposeReschedule(context.Background(), sess.ID, newStart, newStart.Add(time.Hour), sess.TherapistID)
	require.NoError(t, err)

	_, err = svc.Respond(context.Background(), *proposed.Session.RescheduleToken, service.ActionAccept)
	require.ErrorIs(t, err, service.ErrTokenNotFound)
}

func TestRespondToReschedule_ConcurrentOnlyOneSucceeds(t *testing.T) {
	sess, _ := pendingSession(t)
	sess.Status = model.StatusConfirmed
	sess.RSVPToken = nil
	repo := newFakeSessionRepo(sess)
	svc := service.NewRSVPService(repo, &captureSender{}, nopPublisher{}, "http://app.test")

	newStart := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	proposed, err := svc.ProposeReschedule(context.Background(), sess.ID, newStart, newStart.Add(time.Hour), sess.TherapistID)
	require.NoError(t, err)
	tok := *proposed.Session.RescheduleToken

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			action := service.ActionAccept
			if i%2 == 0 {
				action = service.ActionDecline
			}
			_, err := svc.RespondToReschedule(context.Background(), tok, action)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)
}
