// Package accountstore is the account store service: it keeps the user
// documents the devices mirror, one JSONB row per user and field.
package accountstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/workoutsync/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	FieldUserSettings   = "userSettings"
	FieldWorkoutProgram = "workoutProgram"
)

var ErrDocumentNotFound = errors.New("document not found")

var _ documentRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *Repo) GetField(ctx context.Context, userID, field string) (_ json.RawMessage, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.accountstore.getField")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("account.field", field))

	var document []byte
	err = r.db.QueryRow(ctx, `
		SELECT document
		FROM account_document
		WHERE user_id = $1 AND field = $2
	`, userID, field).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

func (r *Repo) UpsertField(ctx context.Context, userID, field string, document json.RawMessage) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.accountstore.upsertField")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("account.field", field))

	_, err = r.db.Exec(ctx, upsertSQL, userID, field, document)
	return err
}

// MergeFields replaces every given field of the user in one transaction.
// Fields not named keep their current document.
func (r *Repo) MergeFields(ctx context.Context, userID string, fields map[string]json.RawMessage) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.accountstore.mergeFields")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("account.fields", len(fields)))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	for field, document := range fields {
		if _, err = tx.Exec(ctx, upsertSQL, userID, field, document); err != nil {
			return fmt.Errorf("upsert [%s]: %w", field, err)
		}
	}

	log.Tracef("account store: merged %d fields for user [%s]", len(fields), userID)
	return nil
}

const upsertSQL = `
	INSERT INTO account_document (user_id, field, document, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (user_id, field)
	DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
`
