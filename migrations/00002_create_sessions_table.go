package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateSessionsTable, downCreateSessionsTable)
}

func upCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	// The partial unique indexes enforce "at most one active token per
	// kind": a consumed token is set to NULL in the same update that
	// applies the transition, so it leaves the index at that moment.
	query := `
		CREATE TABLE sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			therapist_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			client_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			format TEXT NOT NULL DEFAULT 'in_person' CHECK (format IN ('in_person', 'online', 'phone')),
			location TEXT NOT NULL DEFAULT '',
			start_at TIMESTAMP WITH TIME ZONE NOT NULL,
			end_at TIMESTAMP WITH TIME ZONE NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'confirmed', 'declined', 'cancelled', 'reschedule_proposed')),
			rsvp_token TEXT,
			responded_at TIMESTAMP WITH TIME ZONE,
			reschedule_token TEXT,
			proposed_start_at TIMESTAMP WITH TIME ZONE,
			proposed_end_at TIMESTAMP WITH TIME ZONE,
			proposed_by UUID REFERENCES users(id),
			prior_status TEXT CHECK (prior_status IN ('pending', 'confirmed')),
			invite_revision INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
		);

		CREATE UNIQUE INDEX sessions_rsvp_token_key ON sessions (rsvp_token) WHERE rsvp_token IS NOT NULL;
		CREATE UNIQUE INDEX sessions_reschedule_token_key ON sessions (reschedule_token) WHERE reschedule_token IS NOT NULL;
		CREATE INDEX sessions_therapist_start_idx ON sessions (therapist_id, start_at);
		CREATE INDEX sessions_client_start_idx ON sessions (client_id, start_at);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS sessions;`
	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}
