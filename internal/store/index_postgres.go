package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgIndex is the Postgres-backed Index implementation.
type pgIndex struct {
	pool *pgxpool.Pool
}

func (p *pgIndex) init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS discussion_index (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    file_paths TEXT[] NOT NULL DEFAULT '{}',
    current_round INTEGER NOT NULL DEFAULT 0,
    current_turn INTEGER NOT NULL DEFAULT 0,
    is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
    last_token_count INTEGER NOT NULL DEFAULT 0,
    token_limit INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    summary_created_at TIMESTAMPTZ,
    needs_user_input BOOLEAN NOT NULL DEFAULT FALSE,
    user_input_pending BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS discussion_index_user_updated_idx ON discussion_index(user_id, updated_at DESC);
`)
	return err
}

const indexColumns = `id, user_id, topic, file_paths, current_round, current_turn,
    is_resolved, last_token_count, token_limit, summary, summary_created_at,
    needs_user_input, user_input_pending, created_at, updated_at`

func scanIndexRow(row pgx.Row) (IndexRow, error) {
	var r IndexRow
	if err := row.Scan(
		&r.ID, &r.UserID, &r.Topic, &r.FilePaths, &r.CurrentRound, &r.CurrentTurn,
		&r.IsResolved, &r.LastTokenCount, &r.TokenLimit, &r.Summary, &r.SummaryCreatedAt,
		&r.NeedsUserInput, &r.UserInputPending, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return IndexRow{}, err
	}
	return r, nil
}

func (p *pgIndex) Upsert(ctx context.Context, row IndexRow) error {
	if err := ValidateIndexFields(row.fieldNames()...); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO discussion_index (`+indexColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    topic = EXCLUDED.topic,
    file_paths = EXCLUDED.file_paths,
    current_round = EXCLUDED.current_round,
    current_turn = EXCLUDED.current_turn,
    is_resolved = EXCLUDED.is_resolved,
    last_token_count = EXCLUDED.last_token_count,
    token_limit = EXCLUDED.token_limit,
    summary = EXCLUDED.summary,
    summary_created_at = EXCLUDED.summary_created_at,
    needs_user_input = EXCLUDED.needs_user_input,
    user_input_pending = EXCLUDED.user_input_pending,
    updated_at = EXCLUDED.updated_at
`, row.ID, row.UserID, row.Topic, row.FilePaths, row.CurrentRound, row.CurrentTurn,
		row.IsResolved, row.LastTokenCount, row.TokenLimit, row.Summary, row.SummaryCreatedAt,
		row.NeedsUserInput, row.UserInputPending, row.CreatedAt, row.UpdatedAt)
	return err
}

func (p *pgIndex) Get(ctx context.Context, id string) (IndexRow, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+indexColumns+` FROM discussion_index WHERE id = $1`, id)
	r, err := scanIndexRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return IndexRow{}, false, nil
	}
	if err != nil {
		return IndexRow{}, false, err
	}
	return r, true, nil
}

func (p *pgIndex) ListByUser(ctx context.Context, userID string, limit int) ([]IndexRow, error) {
	query := `SELECT ` + indexColumns + ` FROM discussion_index WHERE user_id = $1 ORDER BY updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexRow
	for rows.Next() {
		r, err := scanIndexRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgIndex) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM discussion_index WHERE id = $1`, id)
	return err
}

func (p *pgIndex) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM discussion_index WHERE user_id = $1`, userID)
	return err
}

func (p *pgIndex) All(ctx context.Context) ([]IndexRow, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+indexColumns+` FROM discussion_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexRow
	for rows.Next() {
		r, err := scanIndexRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
