package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/recleague/tracker/engine"
	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/repositories"
)

// SquadEdit is one squad's slice of a bulk round edit. Every squad of the
// round must appear exactly once; the squad count itself cannot change.
type SquadEdit struct {
	SquadID   int     `json:"squad_id"`
	Name      string  `json:"name"`
	Color     *string `json:"color,omitempty"`
	MemberIDs []int   `json:"member_ids"`
}

// AllocationResult reports an allocation outcome together with its advisory
// capacity findings. OverCapacity lists squad positions above idealMax:
// a warning, not a failure.
type AllocationResult struct {
	Round        *models.Round `json:"round"`
	IdealMax     int           `json:"ideal_max"`
	Unplaced     []int         `json:"unplaced_attendee_ids,omitempty"`
	OverCapacity []int         `json:"over_capacity_positions,omitempty"`
}

// PoolAddition registers one late-arriving player with their squad for every
// existing round, keyed by round ID.
type PoolAddition struct {
	PlayerID     int         `json:"player_id"`
	SquadByRound map[int]int `json:"squad_by_round"`
}

// PoolAddResult lists the created attendees plus any rounds whose squads now
// exceed the recomputed idealMax (round ID to over-capacity positions).
type PoolAddResult struct {
	Attendees        []*models.Attendee `json:"attendees"`
	CapacityWarnings map[int][]int      `json:"capacity_warnings,omitempty"`
}

type RoundService interface {
	// CreateRound adds a new round with the given squad count and empty,
	// default-named squads.
	CreateRound(ctx context.Context, sessionID, squadCount int) (*models.Round, error)
	GetRound(ctx context.Context, roundID int) (*models.Round, error)
	// AutoAssign runs the allocator over the session pool and persists the
	// result. Attendees that could not be seated are reported, never dropped.
	AutoAssign(ctx context.Context, roundID int, strategy engine.Strategy, scope engine.Scope) (*AllocationResult, error)
	// ToggleAssignment applies single-click semantics: clicking the squad an
	// attendee is in unassigns them, clicking another moves them unless the
	// target is at idealMax.
	ToggleAssignment(ctx context.Context, roundID, squadID, attendeeID int) (*models.Round, error)
	// EditRound replaces names and memberships of all squads atomically.
	// Capacity overruns are allowed and returned as warnings.
	EditRound(ctx context.Context, roundID int, edits []SquadEdit) (*AllocationResult, error)
	// DeleteRound removes the round, its squads and its pending games.
	// Completed games keep their historical record.
	DeleteRound(ctx context.Context, roundID int) error
	// AddPlayersToPool admits late arrivals; each must come with a squad
	// assignment for every existing round so no round is left with an
	// unpartitioned pool.
	AddPlayersToPool(ctx context.Context, sessionID int, additions []PoolAddition) (*PoolAddResult, error)
}

type roundService struct {
	txManager    repositories.TxManager
	sessionRepo  repositories.SessionRepository
	roundRepo    repositories.RoundRepository
	squadRepo    repositories.SquadRepository
	attendeeRepo repositories.AttendeeRepository
	pendingRepo  repositories.PendingGameRepository
	hub          Broadcaster
	locks        *SessionLocks
}

func NewRoundService(
	txManager repositories.TxManager,
	sessionRepo repositories.SessionRepository,
	roundRepo repositories.RoundRepository,
	squadRepo repositories.SquadRepository,
	attendeeRepo repositories.AttendeeRepository,
	pendingRepo repositories.PendingGameRepository,
	hub Broadcaster,
	locks *SessionLocks,
) RoundService {
	return &roundService{
		txManager:    txManager,
		sessionRepo:  sessionRepo,
		roundRepo:    roundRepo,
		squadRepo:    squadRepo,
		attendeeRepo: attendeeRepo,
		pendingRepo:  pendingRepo,
		hub:          hub,
		locks:        locks,
	}
}

func (s *roundService) CreateRound(ctx context.Context, sessionID, squadCount int) (*models.Round, error) {
	if squadCount < engine.MinSquadCount || squadCount > engine.MaxSquadCount {
		return nil, ErrSquadCountInvalid
	}

	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	rounds, err := s.roundRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	number := 0
	for _, r := range rounds {
		if r.Number > number {
			number = r.Number
		}
	}
	number++

	round := &models.Round{
		SessionID:  sessionID,
		Number:     number,
		SquadCount: squadCount,
	}
	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.roundRepo.Create(ctx, exec, round); err != nil {
			return err
		}
		round.Squads = make([]*models.Squad, 0, squadCount)
		for i := 0; i < squadCount; i++ {
			squad := &models.Squad{
				RoundID:   round.ID,
				Position:  i,
				Name:      fmt.Sprintf("Squad %d", i+1),
				MemberIDs: []int{},
			}
			if err := s.squadRepo.Create(ctx, exec, squad); err != nil {
				return err
			}
			round.Squads = append(round.Squads, squad)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventRoundChanged, round))
	return round, nil
}

func (s *roundService) GetRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	squads, err := s.squadRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	round.Squads = squads
	return round, nil
}

func (s *roundService) AutoAssign(ctx context.Context, roundID int, strategy engine.Strategy, scope engine.Scope) (*AllocationResult, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(round.SessionID)
	defer release()

	if err := s.requireOpen(ctx, round.SessionID); err != nil {
		return nil, err
	}

	attendees, err := s.attendeeRepo.ListBySession(ctx, round.SessionID)
	if err != nil {
		return nil, err
	}
	pool := make([]engine.PoolPlayer, 0, len(attendees))
	for _, a := range attendees {
		pool = append(pool, engine.PoolPlayer{AttendeeID: a.ID, Elo: a.Player.Elo()})
	}

	squads, err := s.squadRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	members := make([][]int, len(squads))
	for i, squad := range squads {
		members[i] = squad.MemberIDs
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	result, err := engine.AutoAssign(pool, members, strategy, scope, rng)
	if err != nil {
		if errors.Is(err, engine.ErrSquadCountOutOfRange) {
			return nil, ErrSquadCountInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		for i, squad := range squads {
			if err := s.squadRepo.ReplaceMembers(ctx, exec, squad.ID, result.Squads[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, squad := range squads {
		squad.MemberIDs = result.Squads[i]
	}
	round.Squads = squads

	s.hub.BroadcastToRoom(sessionRoom(round.SessionID), event(EventRoundChanged, round))
	return &AllocationResult{
		Round:    round,
		IdealMax: engine.IdealMax(len(pool), round.SquadCount),
		Unplaced: result.Unplaced,
	}, nil
}

func (s *roundService) ToggleAssignment(ctx context.Context, roundID, squadID, attendeeID int) (*models.Round, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(round.SessionID)
	defer release()

	if err := s.requireOpen(ctx, round.SessionID); err != nil {
		return nil, err
	}

	attendees, err := s.attendeeRepo.ListBySession(ctx, round.SessionID)
	if err != nil {
		return nil, err
	}
	inPool := false
	for _, a := range attendees {
		if a.ID == attendeeID {
			inPool = true
			break
		}
	}
	if !inPool {
		return nil, ErrAttendeeNotFound
	}

	squads, err := s.squadRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	target := -1
	members := make([][]int, len(squads))
	for i, squad := range squads {
		members[i] = append([]int{}, squad.MemberIDs...)
		if squad.ID == squadID {
			target = i
		}
	}
	if target < 0 {
		return nil, ErrSquadNotFound
	}

	idealMax := engine.IdealMax(len(attendees), round.SquadCount)
	if err := engine.Toggle(members, attendeeID, target, idealMax); err != nil {
		return nil, err
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		for i, squad := range squads {
			if sameMembers(squad.MemberIDs, members[i]) {
				continue
			}
			if err := s.squadRepo.ReplaceMembers(ctx, exec, squad.ID, members[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, squad := range squads {
		squad.MemberIDs = members[i]
	}
	round.Squads = squads

	s.hub.BroadcastToRoom(sessionRoom(round.SessionID), event(EventRoundChanged, round))
	return round, nil
}

func (s *roundService) EditRound(ctx context.Context, roundID int, edits []SquadEdit) (*AllocationResult, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(round.SessionID)
	defer release()

	if err := s.requireOpen(ctx, round.SessionID); err != nil {
		return nil, err
	}

	squads, err := s.squadRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if len(edits) != len(squads) {
		return nil, ErrSquadCountImmutable
	}

	byID := make(map[int]*models.Squad, len(squads))
	for _, squad := range squads {
		byID[squad.ID] = squad
	}
	editByID := make(map[int]*SquadEdit, len(edits))
	for i := range edits {
		edit := &edits[i]
		squad, ok := byID[edit.SquadID]
		if !ok {
			return nil, ErrSquadNotFound
		}
		if _, dup := editByID[edit.SquadID]; dup {
			return nil, fmt.Errorf("%w: squad %d listed twice", ErrValidationFailed, edit.SquadID)
		}
		if strings.TrimSpace(edit.Name) == "" {
			return nil, fmt.Errorf("%w: squad %d needs a name", ErrValidationFailed, squad.ID)
		}
		editByID[edit.SquadID] = edit
	}

	attendees, err := s.attendeeRepo.ListBySession(ctx, round.SessionID)
	if err != nil {
		return nil, err
	}
	poolIDs := make([]int, 0, len(attendees))
	for _, a := range attendees {
		poolIDs = append(poolIDs, a.ID)
	}

	// Position order so warning indexes line up with squad positions.
	members := make([][]int, len(squads))
	for i, squad := range squads {
		members[i] = editByID[squad.ID].MemberIDs
	}

	idealMax := engine.IdealMax(len(attendees), round.SquadCount)
	over, err := engine.ValidateAssignment(poolIDs, members, idealMax)
	if err != nil {
		if errors.Is(err, engine.ErrAttendeeNotInPool) {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAttendeeDoubleAssigned, err)
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		for i, squad := range squads {
			edit := editByID[squad.ID]
			if err := s.squadRepo.UpdateName(ctx, exec, squad.ID, strings.TrimSpace(edit.Name), edit.Color); err != nil {
				return err
			}
			if err := s.squadRepo.ReplaceMembers(ctx, exec, squad.ID, members[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, squad := range squads {
		edit := editByID[squad.ID]
		squad.Name = strings.TrimSpace(edit.Name)
		squad.Color = edit.Color
		squad.MemberIDs = members[i]
	}
	round.Squads = squads

	s.hub.BroadcastToRoom(sessionRoom(round.SessionID), event(EventRoundChanged, round))
	return &AllocationResult{
		Round:        round,
		IdealMax:     idealMax,
		OverCapacity: over,
	}, nil
}

func (s *roundService) DeleteRound(ctx context.Context, roundID int) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}

	release := s.locks.acquire(round.SessionID)
	defer release()

	if err := s.requireOpen(ctx, round.SessionID); err != nil {
		return err
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.pendingRepo.DeleteByRound(ctx, exec, roundID); err != nil {
			return err
		}
		if err := s.squadRepo.DeleteByRound(ctx, exec, roundID); err != nil {
			return err
		}
		return s.roundRepo.Delete(ctx, exec, roundID)
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastToRoom(sessionRoom(round.SessionID), event(EventRoundChanged, map[string]int{"deleted_round_id": roundID}))
	s.hub.BroadcastToRoom(sessionRoom(round.SessionID), event(EventScheduleChanged, map[string]int{"deleted_round_id": roundID}))
	return nil
}

func (s *roundService) AddPlayersToPool(ctx context.Context, sessionID int, additions []PoolAddition) (*PoolAddResult, error) {
	if len(additions) == 0 {
		return nil, fmt.Errorf("%w: no players given", ErrValidationFailed)
	}

	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	rounds, err := s.roundRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	squadsByRound := make(map[int][]*models.Squad, len(rounds))
	for _, round := range rounds {
		squads, err := s.squadRepo.ListByRound(ctx, round.ID)
		if err != nil {
			return nil, err
		}
		squadsByRound[round.ID] = squads
	}

	// Every newcomer must name a valid squad in every round before anything
	// is written.
	for _, add := range additions {
		for _, round := range rounds {
			squadID, ok := add.SquadByRound[round.ID]
			if !ok {
				return nil, fmt.Errorf("%w: player %d has no squad for round %d", ErrNewcomerUnassigned, add.PlayerID, round.Number)
			}
			if findSquad(squadsByRound[round.ID], squadID) == nil {
				return nil, fmt.Errorf("%w: squad %d is not in round %d", ErrSquadsRoundMismatch, squadID, round.Number)
			}
		}
	}

	attendees, err := s.attendeeRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Attendee, 0, len(additions))
	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		for _, add := range additions {
			attendee := &models.Attendee{SessionID: sessionID, PlayerID: add.PlayerID}
			if err := s.attendeeRepo.Create(ctx, exec, attendee); err != nil {
				if errors.Is(err, repositories.ErrAttendeeConflict) {
					return fmt.Errorf("%w: player %d is already attending", ErrValidationFailed, add.PlayerID)
				}
				return err
			}
			created = append(created, attendee)

			for _, round := range rounds {
				squad := findSquad(squadsByRound[round.ID], add.SquadByRound[round.ID])
				squad.MemberIDs = append(squad.MemberIDs, attendee.ID)
				if err := s.squadRepo.ReplaceMembers(ctx, exec, squad.ID, squad.MemberIDs); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	poolSize := len(attendees) + len(created)
	warnings := make(map[int][]int)
	for _, round := range rounds {
		idealMax := engine.IdealMax(poolSize, round.SquadCount)
		for _, squad := range squadsByRound[round.ID] {
			if len(squad.MemberIDs) > idealMax {
				warnings[round.ID] = append(warnings[round.ID], squad.Position)
			}
		}
	}
	if len(warnings) == 0 {
		warnings = nil
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventAttendeesChanged, created))
	for _, round := range rounds {
		round.Squads = squadsByRound[round.ID]
		s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventRoundChanged, round))
	}

	return &PoolAddResult{Attendees: created, CapacityWarnings: warnings}, nil
}

func (s *roundService) getRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return round, nil
}

func (s *roundService) requireOpen(ctx context.Context, sessionID int) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.Status == models.SessionClosed {
		return ErrSessionClosed
	}
	return nil
}

func findSquad(squads []*models.Squad, id int) *models.Squad {
	for _, squad := range squads {
		if squad.ID == id {
			return squad
		}
	}
	return nil
}

func sameMembers(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
