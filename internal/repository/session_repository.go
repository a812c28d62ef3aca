package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"scheduling-service/internal/model"
)

// SessionRepository persists sessions and their bearer tokens.
//
// Every token-consuming or state-changing method is a single conditional
// UPDATE whose WHERE clause carries the required source state, so two
// concurrent calls can never both succeed: the loser sees zero rows and
// gets (nil, nil), exactly like a lookup for a token that never existed.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) (*model.Session, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	FindDetailsByID(ctx context.Context, id uuid.UUID) (*model.SessionDetails, error)
	ListUpcomingByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error)
	ListHistoryByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error)

	// ConsumeRSVPToken atomically clears the RSVP token and moves the
	// session from pending to next (confirmed or declined).
	ConsumeRSVPToken(ctx context.Context, token string, next model.Status) (*model.Session, error)

	// CreateRescheduleProposal attaches a proposal to a pending or
	// confirmed session that has no proposal in flight, remembering the
	// prior status for a later decline.
	CreateRescheduleProposal(ctx context.Context, sessionID uuid.UUID, proposalToken string, startAt, endAt time.Time, proposedBy uuid.UUID) (*model.Session, error)

	// ConsumeRescheduleToken resolves a proposal: accept overwrites the
	// schedule with the proposed values and confirms; decline discards
	// them and restores the prior status.
	ConsumeRescheduleToken(ctx context.Context, token string, accept bool) (*model.Session, error)

	// CancelByTherapist cancels a non-terminal session owned by the
	// therapist, invalidating any outstanding tokens.
	CancelByTherapist(ctx context.Context, sessionID, therapistID uuid.UUID) (*model.Session, error)
}

const sessionColumns = `id, therapist_id, client_id, title, format, location, start_at, end_at, status,
		rsvp_token, responded_at, reschedule_token, proposed_start_at, proposed_end_at, proposed_by,
		prior_status, invite_revision, created_at, updated_at`

type postgresSessionRepository struct {
	db *sqlx.DB
}

func NewPostgresSessionRepository(db *sqlx.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	query := `
		INSERT INTO sessions (therapist_id, client_id, title, format, location, start_at, end_at, status, rsvp_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, invite_revision, created_at, updated_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		session.TherapistID, session.ClientID, session.Title, session.Format, session.Location,
		session.StartAt, session.EndAt, session.Status, session.RSVPToken,
	)
	err := row.Scan(&session.ID, &session.InviteRevision, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *postgresSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var session model.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	err := r.db.GetContext(ctx, &session, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &session, nil
}

const detailsColumns = `s.id, s.therapist_id, s.client_id, s.title, s.format, s.location, s.start_at, s.end_at, s.status,
		s.rsvp_token, s.responded_at, s.reschedule_token, s.proposed_start_at, s.proposed_end_at, s.proposed_by,
		s.prior_status, s.invite_revision, s.created_at, s.updated_at,
		t.name AS therapist_name, t.email AS therapist_email,
		c.name AS client_name, c.email AS client_email`

const detailsJoin = `
	FROM sessions s
	JOIN users t ON t.id = s.therapist_id
	JOIN users c ON c.id = s.client_id`

func (r *postgresSessionRepository) FindDetailsByID(ctx context.Context, id uuid.UUID) (*model.SessionDetails, error) {
	var details model.SessionDetails
	query := `SELECT ` + detailsColumns + detailsJoin + ` WHERE s.id = $1`
	err := r.db.GetContext(ctx, &details, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &details, nil
}

func (r *postgresSessionRepository) ListUpcomingByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	var sessions []model.SessionDetails
	query := `SELECT ` + detailsColumns + detailsJoin + `
	WHERE (s.therapist_id = $1 OR s.client_id = $1) AND s.start_at > NOW() AND s.status NOT IN ('cancelled', 'declined')
	ORDER BY s.start_at ASC`

	err := r.db.SelectContext(ctx, &sessions, query, userID)
	if err != nil {
		return nil, err
	}

	if sessions == nil {
		sessions = []model.SessionDetails{}
	}

	return sessions, nil
}

func (r *postgresSessionRepository) ListHistoryByUser(ctx context.Context, userID uuid.UUID) ([]model.SessionDetails, error) {
	var sessions []model.SessionDetails
	query := `SELECT ` + detailsColumns + detailsJoin + `
	WHERE (s.therapist_id = $1 OR s.client_id = $1) AND (s.start_at <= NOW() OR s.status IN ('cancelled', 'declined'))
	ORDER BY s.start_at DESC`

	err := r.db.SelectContext(ctx, &sessions, query, userID)
	if err != nil {
		return nil, err
	}

	if sessions == nil {
		sessions = []model.SessionDetails{}
	}

	return sessions, nil
}

func (r *postgresSessionRepository) ConsumeRSVPToken(ctx context.Context, token string, next model.Status) (*model.Session, error) {
	query := `
		UPDATE sessions
		SET status = $2, rsvp_token = NULL, responded_at = NOW(),
			invite_revision = invite_revision + 1, updated_at = NOW()
		WHERE rsvp_token = $1 AND status = 'pending'
		RETURNING ` + sessionColumns

	return r.updateReturning(ctx, query, token, next)
}

func (r *postgresSessionRepository) CreateRescheduleProposal(ctx context.Context, sessionID uuid.UUID, proposalToken string, startAt, endAt time.Time, proposedBy uuid.UUID) (*model.Session, error) {
	query := `
		UPDATE sessions
		SET prior_status = status, status = 'reschedule_proposed',
			reschedule_token = $2, proposed_start_at = $3, proposed_end_at = $4, proposed_by = $5,
			invite_revision = invite_revision + 1, updated_at = NOW()
		WHERE id = $1 AND therapist_id = $5 AND status IN ('pending', 'confirmed') AND reschedule_token IS NULL
		RETURNING ` + sessionColumns

	return r.updateReturning(ctx, query, sessionID, proposalToken, startAt, endAt, proposedBy)
}

func (r *postgresSessionRepository) ConsumeRescheduleToken(ctx context.Context, token string, accept bool) (*model.Session, error) {
	var query string
	if accept {
		query = `
		UPDATE sessions
		SET start_at = proposed_start_at, end_at = proposed_end_at, status = 'confirmed',
			reschedule_token = NULL, proposed_start_at = NULL, proposed_end_at = NULL,
			proposed_by = NULL, prior_status = NULL, responded_at = NOW(),
			invite_revision = invite_revision + 1, updated_at = NOW()
		WHERE reschedule_token = $1 AND status = 'reschedule_proposed'
		RETURNING ` + sessionColumns
	} else {
		query = `
		UPDATE sessions
		SET status = prior_status,
			reschedule_token = NULL, proposed_start_at = NULL, proposed_end_at = NULL,
			proposed_by = NULL, prior_status = NULL, responded_at = NOW(),
			invite_revision = invite_revision + 1, updated_at = NOW()
		WHERE reschedule_token = $1 AND status = 'reschedule_proposed'
		RETURNING ` + sessionColumns
	}

	return r.updateReturning(ctx, query, token)
}

func (r *postgresSessionRepository) CancelByTherapist(ctx context.Context, sessionID, therapistID uuid.UUID) (*model.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'cancelled', rsvp_token = NULL, reschedule_token = NULL,
			proposed_start_at = NULL, proposed_end_at = NULL, proposed_by = NULL, prior_status = NULL,
			invite_revision = invite_revision + 1, updated_at = NOW()
		WHERE id = $1 AND therapist_id = $2 AND status NOT IN ('cancelled', 'declined')
		RETURNING ` + sessionColumns

	return r.updateReturning(ctx, query, sessionID, therapistID)
}

// updateReturning runs a conditional UPDATE ... RETURNING and maps the
// zero-row case to (nil, nil).
func (r *postgresSessionRepository) updateReturning(ctx context.Context, query string, args ...any) (*model.Session, error) {
	var session model.Session
	err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&session)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &session, nil
}
