package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/recleague/tracker/models"
)

var ErrCompletedGameNotFound = errors.New("completed game not found")

type CompletedGameRepository interface {
	Create(ctx context.Context, exec SQLExecutor, game *models.CompletedGame) error
	CreateParticipants(ctx context.Context, exec SQLExecutor, gameID int, participants []*models.GameParticipant) error
	GetByID(ctx context.Context, id int) (*models.CompletedGame, error)
	ListBySession(ctx context.Context, sessionID int) ([]*models.CompletedGame, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id, scoreA, scoreB int, weight models.GameWeight) error
}

type postgresCompletedGameRepository struct {
	db *sql.DB
}

func NewPostgresCompletedGameRepository(db *sql.DB) CompletedGameRepository {
	return &postgresCompletedGameRepository{db: db}
}

const completedGameColumns = `id, session_id, round_id, squad_a_id, squad_b_id, game_number,
	score_a, score_b, weight, played_at, created_at`

func (r *postgresCompletedGameRepository) Create(ctx context.Context, exec SQLExecutor, game *models.CompletedGame) error {
	query := `
		INSERT INTO completed_games
			(session_id, round_id, squad_a_id, squad_b_id, game_number, score_a, score_b, weight, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		game.SessionID,
		game.RoundID,
		game.SquadAID,
		game.SquadBID,
		game.GameNumber,
		game.ScoreA,
		game.ScoreB,
		game.Weight,
		game.PlayedAt,
	).Scan(&game.ID, &game.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert completed game: %w", err)
	}
	return nil
}

func (r *postgresCompletedGameRepository) CreateParticipants(ctx context.Context, exec SQLExecutor, gameID int, participants []*models.GameParticipant) error {
	query := `
		INSERT INTO game_participants
			(game_id, player_id, squad_id, elo_before, elo_after, mu_after, sigma_after, won)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	for _, p := range participants {
		p.GameID = gameID
		err := exec.QueryRowContext(ctx, query,
			p.GameID, p.PlayerID, p.SquadID, p.EloBefore, p.EloAfter, p.MuAfter, p.SigAfter, p.Won,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to insert participant for game %d, player %d: %w", gameID, p.PlayerID, err)
		}
	}
	return nil
}

func (r *postgresCompletedGameRepository) GetByID(ctx context.Context, id int) (*models.CompletedGame, error) {
	game := &models.CompletedGame{}
	err := r.db.QueryRowContext(ctx, `SELECT `+completedGameColumns+` FROM completed_games WHERE id = $1`, id).
		Scan(&game.ID, &game.SessionID, &game.RoundID, &game.SquadAID, &game.SquadBID,
			&game.GameNumber, &game.ScoreA, &game.ScoreB, &game.Weight, &game.PlayedAt, &game.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompletedGameNotFound
		}
		return nil, fmt.Errorf("failed to scan completed game %d: %w", id, err)
	}

	participants, err := r.loadParticipants(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	game.Participants = participants[id]
	return game, nil
}

func (r *postgresCompletedGameRepository) ListBySession(ctx context.Context, sessionID int) ([]*models.CompletedGame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+completedGameColumns+` FROM completed_games
		WHERE session_id = $1
		ORDER BY game_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed games for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	games := make([]*models.CompletedGame, 0)
	ids := make([]int, 0)
	for rows.Next() {
		game := &models.CompletedGame{}
		err := rows.Scan(&game.ID, &game.SessionID, &game.RoundID, &game.SquadAID, &game.SquadBID,
			&game.GameNumber, &game.ScoreA, &game.ScoreB, &game.Weight, &game.PlayedAt, &game.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed game row: %w", err)
		}
		games = append(games, game)
		ids = append(ids, game.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	participants, err := r.loadParticipants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, game := range games {
		game.Participants = participants[game.ID]
	}
	return games, nil
}

func (r *postgresCompletedGameRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id, scoreA, scoreB int, weight models.GameWeight) error {
	result, err := exec.ExecContext(ctx, `
		UPDATE completed_games SET score_a = $1, score_b = $2, weight = $3 WHERE id = $4`,
		scoreA, scoreB, weight, id)
	if err != nil {
		return fmt.Errorf("failed to update completed game %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompletedGameNotFound)
}

func (r *postgresCompletedGameRepository) loadParticipants(ctx context.Context, gameIDs []int) (map[int][]*models.GameParticipant, error) {
	out := make(map[int][]*models.GameParticipant, len(gameIDs))
	if len(gameIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, game_id, player_id, squad_id, elo_before, elo_after, mu_after, sigma_after, won
		FROM game_participants
		WHERE game_id = ANY($1)
		ORDER BY game_id ASC, id ASC`, pq.Array(gameIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query game participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &models.GameParticipant{}
		err := rows.Scan(&p.ID, &p.GameID, &p.PlayerID, &p.SquadID,
			&p.EloBefore, &p.EloAfter, &p.MuAfter, &p.SigAfter, &p.Won)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game participant row: %w", err)
		}
		out[p.GameID] = append(out[p.GameID], p)
	}
	return out, rows.Err()
}
