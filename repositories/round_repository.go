package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/recleague/tracker/models"
)

var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundNumberConflict = errors.New("round number already exists in this session")
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, id int) (*models.Round, error)
	ListBySession(ctx context.Context, sessionID int) ([]*models.Round, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	query := `
		INSERT INTO rounds (session_id, number, squad_count)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query, round.SessionID, round.Number, round.SquadCount).
		Scan(&round.ID, &round.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "rounds_session_id_number_key" {
			return ErrRoundNumberConflict
		}
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, id int) (*models.Round, error) {
	round := &models.Round{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, number, squad_count, created_at
		FROM rounds WHERE id = $1`, id).
		Scan(&round.ID, &round.SessionID, &round.Number, &round.SquadCount, &round.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to scan round %d: %w", id, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) ListBySession(ctx context.Context, sessionID int) ([]*models.Round, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, number, squad_count, created_at
		FROM rounds WHERE session_id = $1
		ORDER BY number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		round := &models.Round{}
		if err := rows.Scan(&round.ID, &round.SessionID, &round.Number, &round.SquadCount, &round.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (r *postgresRoundRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM rounds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete round %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}
