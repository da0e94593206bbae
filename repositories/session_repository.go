package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recleague/tracker/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id int) (*models.Session, error)
	ListByTeam(ctx context.Context, teamID int) ([]*models.Session, error)
	UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error
	Delete(ctx context.Context, id int) error
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (team_id, name, date, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		session.TeamID,
		session.Name,
		session.Date,
		session.Status,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, id int) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, date, status, created_at
		FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.TeamID, &s.Name, &s.Date, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session %d: %w", id, err)
	}
	return s, nil
}

func (r *postgresSessionRepository) ListByTeam(ctx context.Context, teamID int) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, team_id, name, date, status, created_at
		FROM sessions WHERE team_id = $1
		ORDER BY date DESC, id DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for team %d: %w", teamID, err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(&s.ID, &s.TeamID, &s.Name, &s.Date, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *postgresSessionRepository) UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update session %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func (r *postgresSessionRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}
