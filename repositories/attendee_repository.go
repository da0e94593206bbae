package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/recleague/tracker/models"
)

var (
	ErrAttendeeNotFound      = errors.New("attendee not found")
	ErrAttendeeConflict      = errors.New("player is already attending this session")
	ErrAttendeePlayerInvalid = errors.New("attendee references an unknown player")
)

type AttendeeRepository interface {
	Create(ctx context.Context, exec SQLExecutor, attendee *models.Attendee) error
	GetByID(ctx context.Context, id int) (*models.Attendee, error)
	// ListBySession returns active (not removed) attendees with their player
	// records attached, ordered by join time.
	ListBySession(ctx context.Context, sessionID int) ([]*models.Attendee, error)
	SoftRemove(ctx context.Context, exec SQLExecutor, id int, removedAt time.Time) error
}

type postgresAttendeeRepository struct {
	db *sql.DB
}

func NewPostgresAttendeeRepository(db *sql.DB) AttendeeRepository {
	return &postgresAttendeeRepository{db: db}
}

func (r *postgresAttendeeRepository) Create(ctx context.Context, exec SQLExecutor, attendee *models.Attendee) error {
	query := `
		INSERT INTO attendees (session_id, player_id)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query, attendee.SessionID, attendee.PlayerID).
		Scan(&attendee.ID, &attendee.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "attendees_session_id_player_id_key":
				return ErrAttendeeConflict
			case "attendees_player_id_fkey":
				return ErrAttendeePlayerInvalid
			}
		}
		return fmt.Errorf("failed to insert attendee: %w", err)
	}
	return nil
}

func (r *postgresAttendeeRepository) GetByID(ctx context.Context, id int) (*models.Attendee, error) {
	a := &models.Attendee{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, player_id, created_at, removed_at
		FROM attendees WHERE id = $1`, id).
		Scan(&a.ID, &a.SessionID, &a.PlayerID, &a.CreatedAt, &a.RemovedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("failed to scan attendee %d: %w", id, err)
	}
	return a, nil
}

func (r *postgresAttendeeRepository) ListBySession(ctx context.Context, sessionID int) ([]*models.Attendee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.session_id, a.player_id, a.created_at, a.removed_at,
		       p.id, p.team_id, p.name, p.mu, p.sigma, p.wins, p.losses,
		       p.win_streak, p.loss_streak, p.avatar_key, p.created_at
		FROM attendees a
		JOIN players p ON p.id = a.player_id
		WHERE a.session_id = $1 AND a.removed_at IS NULL
		ORDER BY a.created_at ASC, a.id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendees for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	attendees := make([]*models.Attendee, 0)
	for rows.Next() {
		a := &models.Attendee{Player: &models.Player{}}
		p := a.Player
		err := rows.Scan(
			&a.ID, &a.SessionID, &a.PlayerID, &a.CreatedAt, &a.RemovedAt,
			&p.ID, &p.TeamID, &p.Name, &p.Mu, &p.Sigma, &p.Wins, &p.Losses,
			&p.WinStreak, &p.LossStreak, &p.AvatarKey, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee row: %w", err)
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

func (r *postgresAttendeeRepository) SoftRemove(ctx context.Context, exec SQLExecutor, id int, removedAt time.Time) error {
	result, err := exec.ExecContext(ctx, `
		UPDATE attendees SET removed_at = $1
		WHERE id = $2 AND removed_at IS NULL`, removedAt, id)
	if err != nil {
		return fmt.Errorf("failed to remove attendee %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrAttendeeNotFound)
}
