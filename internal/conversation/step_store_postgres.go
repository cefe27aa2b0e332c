package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stepQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStepStore persists steps in the conversation_steps table.
type PGStepStore struct {
	db stepQuerier
}

func NewPGStepStore(pool *pgxpool.Pool) *PGStepStore {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PGStepStore{db: pool}
}

func newPGStepStoreWithQuerier(q stepQuerier) *PGStepStore {
	return &PGStepStore{db: q}
}

func (s *PGStepStore) GetStep(ctx context.Context, userID string) (int, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, false, errUserIDRequired
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO conversation_steps (user_id, step)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, FirstStep)
	if err != nil {
		return 0, false, fmt.Errorf("conversation: create step: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return FirstStep, true, nil
	}
	var step int
	if err := s.db.QueryRow(ctx, `SELECT step FROM conversation_steps WHERE user_id = $1`, userID).Scan(&step); err != nil {
		return 0, false, fmt.Errorf("conversation: load step: %w", err)
	}
	return step, false, nil
}

func (s *PGStepStore) Lookup(ctx context.Context, userID string) (int, bool, error) {
	var step int
	err := s.db.QueryRow(ctx, `SELECT step FROM conversation_steps WHERE user_id = $1`, userID).Scan(&step)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("conversation: load step: %w", err)
	}
	return step, true, nil
}

func (s *PGStepStore) SetStep(ctx context.Context, userID string, step int) error {
	if err := validateStep(userID, step); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO conversation_steps (user_id, step)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET step = EXCLUDED.step, updated_at = now()
	`, userID, step); err != nil {
		return fmt.Errorf("conversation: persist step: %w", err)
	}
	return nil
}

func (s *PGStepStore) Snapshot(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id, step FROM conversation_steps`)
	if err != nil {
		return nil, fmt.Errorf("conversation: load steps: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			step   int
		)
		if err := rows.Scan(&userID, &step); err != nil {
			return nil, fmt.Errorf("conversation: scan step: %w", err)
		}
		out[userID] = step
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate steps: %w", err)
	}
	return out, nil
}
