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
	ErrSquadNotFound        = errors.New("squad not found")
	ErrSquadMemberConflict  = errors.New("attendee is already a member of this squad")
	ErrSquadMemberInvalid   = errors.New("squad member references an unknown attendee")
	ErrSquadAttendeeMissing = errors.New("squad membership not found")
)

type SquadRepository interface {
	Create(ctx context.Context, exec SQLExecutor, squad *models.Squad) error
	GetByID(ctx context.Context, id int) (*models.Squad, error)
	// ListByRound returns squads ordered by position with MemberIDs loaded
	// in seat order.
	ListByRound(ctx context.Context, roundID int) ([]*models.Squad, error)
	UpdateName(ctx context.Context, exec SQLExecutor, id int, name string, color *string) error
	// ReplaceMembers swaps the full member list of a squad in seat order.
	ReplaceMembers(ctx context.Context, exec SQLExecutor, squadID int, memberIDs []int) error
	// RemoveAttendeeFromSession drops an attendee from every squad of every
	// round in the session. Used when an attendee leaves the session.
	RemoveAttendeeFromSession(ctx context.Context, exec SQLExecutor, sessionID, attendeeID int) error
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error
}

type postgresSquadRepository struct {
	db *sql.DB
}

func NewPostgresSquadRepository(db *sql.DB) SquadRepository {
	return &postgresSquadRepository{db: db}
}

func (r *postgresSquadRepository) Create(ctx context.Context, exec SQLExecutor, squad *models.Squad) error {
	query := `
		INSERT INTO squads (round_id, position, name, color)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query, squad.RoundID, squad.Position, squad.Name, squad.Color).
		Scan(&squad.ID, &squad.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert squad: %w", err)
	}

	if len(squad.MemberIDs) > 0 {
		if err := r.insertMembers(ctx, exec, squad.ID, squad.MemberIDs); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresSquadRepository) GetByID(ctx context.Context, id int) (*models.Squad, error) {
	squad := &models.Squad{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, round_id, position, name, color, created_at
		FROM squads WHERE id = $1`, id).
		Scan(&squad.ID, &squad.RoundID, &squad.Position, &squad.Name, &squad.Color, &squad.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSquadNotFound
		}
		return nil, fmt.Errorf("failed to scan squad %d: %w", id, err)
	}

	members, err := r.loadMembers(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	squad.MemberIDs = members[id]
	if squad.MemberIDs == nil {
		squad.MemberIDs = []int{}
	}
	return squad, nil
}

func (r *postgresSquadRepository) ListByRound(ctx context.Context, roundID int) ([]*models.Squad, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, round_id, position, name, color, created_at
		FROM squads WHERE round_id = $1
		ORDER BY position ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query squads for round %d: %w", roundID, err)
	}
	defer rows.Close()

	squads := make([]*models.Squad, 0)
	ids := make([]int, 0)
	for rows.Next() {
		squad := &models.Squad{MemberIDs: []int{}}
		if err := rows.Scan(&squad.ID, &squad.RoundID, &squad.Position, &squad.Name, &squad.Color, &squad.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan squad row: %w", err)
		}
		squads = append(squads, squad)
		ids = append(ids, squad.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, squad := range squads {
		if m, ok := members[squad.ID]; ok {
			squad.MemberIDs = m
		}
	}
	return squads, nil
}

func (r *postgresSquadRepository) UpdateName(ctx context.Context, exec SQLExecutor, id int, name string, color *string) error {
	result, err := exec.ExecContext(ctx, `
		UPDATE squads SET name = $1, color = $2 WHERE id = $3`, name, color, id)
	if err != nil {
		return fmt.Errorf("failed to update squad %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSquadNotFound)
}

func (r *postgresSquadRepository) ReplaceMembers(ctx context.Context, exec SQLExecutor, squadID int, memberIDs []int) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM squad_members WHERE squad_id = $1`, squadID); err != nil {
		return fmt.Errorf("failed to clear members of squad %d: %w", squadID, err)
	}
	return r.insertMembers(ctx, exec, squadID, memberIDs)
}

func (r *postgresSquadRepository) RemoveAttendeeFromSession(ctx context.Context, exec SQLExecutor, sessionID, attendeeID int) error {
	_, err := exec.ExecContext(ctx, `
		DELETE FROM squad_members sm
		USING squads s, rounds rd
		WHERE sm.squad_id = s.id
		  AND s.round_id = rd.id
		  AND rd.session_id = $1
		  AND sm.attendee_id = $2`, sessionID, attendeeID)
	if err != nil {
		return fmt.Errorf("failed to remove attendee %d from session %d squads: %w", attendeeID, sessionID, err)
	}
	return nil
}

func (r *postgresSquadRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := exec.ExecContext(ctx, `
		DELETE FROM squad_members sm
		USING squads s
		WHERE sm.squad_id = s.id AND s.round_id = $1`, roundID); err != nil {
		return fmt.Errorf("failed to delete squad members for round %d: %w", roundID, err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM squads WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("failed to delete squads for round %d: %w", roundID, err)
	}
	return nil
}

func (r *postgresSquadRepository) insertMembers(ctx context.Context, exec SQLExecutor, squadID int, memberIDs []int) error {
	for seat, attendeeID := range memberIDs {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO squad_members (squad_id, attendee_id, seat)
			VALUES ($1, $2, $3)`, squadID, attendeeID, seat)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) {
				switch pqErr.Constraint {
				case "squad_members_pkey":
					return ErrSquadMemberConflict
				case "squad_members_attendee_id_fkey":
					return ErrSquadMemberInvalid
				}
			}
			return fmt.Errorf("failed to insert member %d into squad %d: %w", attendeeID, squadID, err)
		}
	}
	return nil
}

// loadMembers maps squad ID to its member attendee IDs in seat order.
func (r *postgresSquadRepository) loadMembers(ctx context.Context, squadIDs []int) (map[int][]int, error) {
	members := make(map[int][]int, len(squadIDs))
	if len(squadIDs) == 0 {
		return members, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT squad_id, attendee_id
		FROM squad_members
		WHERE squad_id = ANY($1)
		ORDER BY squad_id ASC, seat ASC`, pq.Array(squadIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query squad members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var squadID, attendeeID int
		if err := rows.Scan(&squadID, &attendeeID); err != nil {
			return nil, fmt.Errorf("failed to scan squad member row: %w", err)
		}
		members[squadID] = append(members[squadID], attendeeID)
	}
	return members, rows.Err()
}
