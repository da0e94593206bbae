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
	ErrPendingGameNotFound       = errors.New("pending game not found")
	ErrPendingGameNumberConflict = errors.New("game number already used in this session")
	ErrPendingGameSquadInvalid   = errors.New("pending game references an unknown squad")
)

type PendingGameRepository interface {
	Create(ctx context.Context, exec SQLExecutor, game *models.PendingGame) error
	GetByID(ctx context.Context, id int) (*models.PendingGame, error)
	// ListBySession returns pending games ordered by round number, then game
	// number, the authoritative queue order.
	ListBySession(ctx context.Context, sessionID int) ([]*models.PendingGame, error)
	ListByRound(ctx context.Context, roundID int) ([]*models.PendingGame, error)
	UpdateGameNumber(ctx context.Context, exec SQLExecutor, id, gameNumber int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error
	// MaxGameNumber covers pending and completed games alike, so a number is
	// never reissued after a game completes.
	MaxGameNumber(ctx context.Context, sessionID int) (int, error)
}

type postgresPendingGameRepository struct {
	db *sql.DB
}

func NewPostgresPendingGameRepository(db *sql.DB) PendingGameRepository {
	return &postgresPendingGameRepository{db: db}
}

const pendingGameColumns = `id, session_id, round_id, squad_a_id, squad_b_id, game_number, created_at`

func (r *postgresPendingGameRepository) Create(ctx context.Context, exec SQLExecutor, game *models.PendingGame) error {
	query := `
		INSERT INTO pending_games (session_id, round_id, squad_a_id, squad_b_id, game_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		game.SessionID,
		game.RoundID,
		game.SquadAID,
		game.SquadBID,
		game.GameNumber,
	).Scan(&game.ID, &game.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "pending_games_session_id_game_number_key":
				return ErrPendingGameNumberConflict
			case "pending_games_squad_a_id_fkey", "pending_games_squad_b_id_fkey":
				return ErrPendingGameSquadInvalid
			}
		}
		return fmt.Errorf("failed to insert pending game: %w", err)
	}
	return nil
}

func (r *postgresPendingGameRepository) GetByID(ctx context.Context, id int) (*models.PendingGame, error) {
	game := &models.PendingGame{}
	err := r.db.QueryRowContext(ctx, `SELECT `+pendingGameColumns+` FROM pending_games WHERE id = $1`, id).
		Scan(&game.ID, &game.SessionID, &game.RoundID, &game.SquadAID, &game.SquadBID, &game.GameNumber, &game.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingGameNotFound
		}
		return nil, fmt.Errorf("failed to scan pending game %d: %w", id, err)
	}
	return game, nil
}

func (r *postgresPendingGameRepository) ListBySession(ctx context.Context, sessionID int) ([]*models.PendingGame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pg.id, pg.session_id, pg.round_id, pg.squad_a_id, pg.squad_b_id, pg.game_number, pg.created_at
		FROM pending_games pg
		JOIN rounds rd ON rd.id = pg.round_id
		WHERE pg.session_id = $1
		ORDER BY rd.number ASC, pg.game_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending games for session %d: %w", sessionID, err)
	}
	defer rows.Close()
	return collectPendingGames(rows)
}

func (r *postgresPendingGameRepository) ListByRound(ctx context.Context, roundID int) ([]*models.PendingGame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pendingGameColumns+` FROM pending_games
		WHERE round_id = $1
		ORDER BY game_number ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending games for round %d: %w", roundID, err)
	}
	defer rows.Close()
	return collectPendingGames(rows)
}

func (r *postgresPendingGameRepository) UpdateGameNumber(ctx context.Context, exec SQLExecutor, id, gameNumber int) error {
	result, err := exec.ExecContext(ctx, `
		UPDATE pending_games SET game_number = $1 WHERE id = $2`, gameNumber, id)
	if err != nil {
		return fmt.Errorf("failed to renumber pending game %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrPendingGameNotFound)
}

func (r *postgresPendingGameRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM pending_games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending game %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrPendingGameNotFound)
}

func (r *postgresPendingGameRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM pending_games WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("failed to delete pending games for round %d: %w", roundID, err)
	}
	return nil
}

func (r *postgresPendingGameRepository) MaxGameNumber(ctx context.Context, sessionID int) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(GREATEST(
			(SELECT MAX(game_number) FROM pending_games WHERE session_id = $1),
			(SELECT MAX(game_number) FROM completed_games WHERE session_id = $1)
		), 0)`, sessionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max game number for session %d: %w", sessionID, err)
	}
	return max, nil
}

func collectPendingGames(rows *sql.Rows) ([]*models.PendingGame, error) {
	games := make([]*models.PendingGame, 0)
	for rows.Next() {
		game := &models.PendingGame{}
		err := rows.Scan(&game.ID, &game.SessionID, &game.RoundID, &game.SquadAID,
			&game.SquadBID, &game.GameNumber, &game.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending game row: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}
