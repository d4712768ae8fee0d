package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/shuuro/go/internal/models"
)

const createMatchesTable = `
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	status     INTEGER NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_unfinished_idx ON matches (status) WHERE status < 0;
`

const upsertMatch = `
INSERT INTO matches (id, status, doc, updated_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    doc = EXCLUDED.doc,
    updated_at = EXCLUDED.updated_at
WHERE matches.status < 0`

// appendMove pushes the move onto doc.history.<stage>, replaces doc.clock and
// clears the draw offers a move always cancels.
const appendMove = `
UPDATE matches
SET doc = jsonb_set(
        jsonb_set(
            jsonb_set(
                doc,
                ARRAY['history', $2::text],
                COALESCE(doc #> ARRAY['history', $2::text], '[]'::jsonb) || jsonb_build_array($3::text)
            ),
            '{clock}', $4::jsonb
        ),
        '{draw_offers}', '[false, false]'::jsonb
    ),
    updated_at = now()
WHERE id = $1`

// PostgresStore keeps one JSONB document per match.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the matches table when it is missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createMatchesTable); err != nil {
		return fmt.Errorf("failed to create matches table: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadUnfinished(ctx context.Context) ([]models.Match, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM matches WHERE status < 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished matches: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to read unfinished matches: %w", err)
	}

	out := make([]models.Match, 0, len(docs))
	for _, raw := range docs {
		var m models.Match
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode match document: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, m models.Match) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode match %s: %w", m.ID, err)
	}
	if _, err := s.pool.Exec(ctx, upsertMatch, m.ID, int(m.Status), string(doc), m.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert match %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) AppendMove(ctx context.Context, id string, ply models.Ply) error {
	clock, err := json.Marshal(ply.Clock)
	if err != nil {
		return fmt.Errorf("failed to encode clock: %w", err)
	}
	tag, err := s.pool.Exec(ctx, appendMove, id, ply.Stage.String(), ply.Move, string(clock))
	if err != nil {
		return fmt.Errorf("failed to append move to match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check match %s: %w", id, err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Match, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM matches WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Match{}, ErrNotFound
	}
	if err != nil {
		return models.Match{}, fmt.Errorf("failed to load match %s: %w", id, err)
	}

	var m models.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Match{}, fmt.Errorf("failed to decode match %s: %w", id, err)
	}
	return m, nil
}
