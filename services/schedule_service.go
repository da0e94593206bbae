package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/recleague/tracker/engine"
	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/repositories"
)

// editWindow bounds how long after the match date a completed game's scores
// and weight may still be corrected.
const editWindow = 72 * time.Hour

// GameResult carries the submitted outcome of a game. An empty weight means
// standard.
type GameResult struct {
	ScoreA int               `json:"score_a"`
	ScoreB int               `json:"score_b"`
	Weight models.GameWeight `json:"weight,omitempty"`
}

type ScheduleService interface {
	// ListQueue returns the session's pending games in authoritative order:
	// round number first, game number within the round.
	ListQueue(ctx context.Context, sessionID int) ([]*models.PendingGame, error)
	// AppendGame schedules a pairing at the end of the session queue.
	AppendGame(ctx context.Context, sessionID, roundID, squadAID, squadBID int) (*models.PendingGame, error)
	// Reorder rearranges one round's pending games. The round's existing game
	// numbers are reassigned over the new order; other rounds are untouched.
	Reorder(ctx context.Context, sessionID, roundID int, orderedIDs []int) ([]*models.PendingGame, error)
	RemoveGame(ctx context.Context, sessionID, gameID int) error
	// CompleteGame finalizes a pending game: ratings update, the audit record
	// is written, and the game leaves the queue, all or nothing.
	CompleteGame(ctx context.Context, sessionID, gameID int, result GameResult) (*models.CompletedGame, error)
	// EditCompletedGame corrects scores and weight within the edit window.
	// Rating deltas are never recomputed.
	EditCompletedGame(ctx context.Context, sessionID, gameID int, result GameResult) (*models.CompletedGame, error)
}

type scheduleService struct {
	txManager     repositories.TxManager
	sessionRepo   repositories.SessionRepository
	roundRepo     repositories.RoundRepository
	squadRepo     repositories.SquadRepository
	attendeeRepo  repositories.AttendeeRepository
	playerRepo    repositories.PlayerRepository
	pendingRepo   repositories.PendingGameRepository
	completedRepo repositories.CompletedGameRepository
	hub           Broadcaster
	locks         *SessionLocks
}

func NewScheduleService(
	txManager repositories.TxManager,
	sessionRepo repositories.SessionRepository,
	roundRepo repositories.RoundRepository,
	squadRepo repositories.SquadRepository,
	attendeeRepo repositories.AttendeeRepository,
	playerRepo repositories.PlayerRepository,
	pendingRepo repositories.PendingGameRepository,
	completedRepo repositories.CompletedGameRepository,
	hub Broadcaster,
	locks *SessionLocks,
) ScheduleService {
	return &scheduleService{
		txManager:     txManager,
		sessionRepo:   sessionRepo,
		roundRepo:     roundRepo,
		squadRepo:     squadRepo,
		attendeeRepo:  attendeeRepo,
		playerRepo:    playerRepo,
		pendingRepo:   pendingRepo,
		completedRepo: completedRepo,
		hub:           hub,
		locks:         locks,
	}
}

func (s *scheduleService) ListQueue(ctx context.Context, sessionID int) ([]*models.PendingGame, error) {
	return s.pendingRepo.ListBySession(ctx, sessionID)
}

func (s *scheduleService) AppendGame(ctx context.Context, sessionID, roundID, squadAID, squadBID int) (*models.PendingGame, error) {
	if squadAID == squadBID {
		return nil, ErrSquadsNotDistinct
	}

	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	if round.SessionID != sessionID {
		return nil, ErrRoundNotFound
	}

	squads, err := s.squadRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	squadA := findSquad(squads, squadAID)
	squadB := findSquad(squads, squadBID)
	if squadA == nil || squadB == nil {
		return nil, ErrSquadsRoundMismatch
	}

	if shared := engine.Overlap(squadA.MemberIDs, squadB.MemberIDs); len(shared) > 0 {
		return nil, &SquadOverlapError{ConflictingIDs: shared}
	}

	existing, err := s.pendingRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	for _, g := range existing {
		if (g.SquadAID == squadAID && g.SquadBID == squadBID) ||
			(g.SquadAID == squadBID && g.SquadBID == squadAID) {
			return nil, ErrDuplicatePairing
		}
	}

	max, err := s.pendingRepo.MaxGameNumber(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	game := &models.PendingGame{
		SessionID:  sessionID,
		RoundID:    roundID,
		SquadAID:   squadAID,
		SquadBID:   squadBID,
		GameNumber: engine.NextGameNumber(max),
	}
	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.pendingRepo.Create(ctx, exec, game)
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventScheduleChanged, game))
	return game, nil
}

func (s *scheduleService) Reorder(ctx context.Context, sessionID, roundID int, orderedIDs []int) ([]*models.PendingGame, error) {
	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	if round.SessionID != sessionID {
		return nil, ErrRoundNotFound
	}

	games, err := s.pendingRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	slots := make([]engine.GameSlot, 0, len(games))
	gameByID := make(map[int]*models.PendingGame, len(games))
	for _, g := range games {
		slots = append(slots, engine.GameSlot{GameID: g.ID, GameNumber: g.GameNumber})
		gameByID[g.ID] = g
	}

	renumbered, err := engine.Renumber(slots, orderedIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	changed := make([]engine.GameSlot, 0, len(renumbered))
	for _, slot := range renumbered {
		if gameByID[slot.GameID].GameNumber != slot.GameNumber {
			changed = append(changed, slot)
		}
	}

	// Two phases: park the changed games on negative numbers first so the
	// session-wide uniqueness constraint never trips mid-shuffle.
	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		for _, slot := range changed {
			if err := s.pendingRepo.UpdateGameNumber(ctx, exec, slot.GameID, -slot.GameID); err != nil {
				return err
			}
		}
		for _, slot := range changed {
			if err := s.pendingRepo.UpdateGameNumber(ctx, exec, slot.GameID, slot.GameNumber); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordered := make([]*models.PendingGame, 0, len(renumbered))
	for _, slot := range renumbered {
		game := gameByID[slot.GameID]
		game.GameNumber = slot.GameNumber
		ordered = append(ordered, game)
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventScheduleChanged, ordered))
	return ordered, nil
}

func (s *scheduleService) RemoveGame(ctx context.Context, sessionID, gameID int) error {
	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return err
	}

	game, err := s.getPending(ctx, sessionID, gameID)
	if err != nil {
		return err
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.pendingRepo.Delete(ctx, exec, game.ID)
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventScheduleChanged, map[string]int{"removed_game_id": gameID}))
	return nil
}

func (s *scheduleService) CompleteGame(ctx context.Context, sessionID, gameID int, result GameResult) (*models.CompletedGame, error) {
	release := s.locks.acquire(sessionID)
	defer release()

	if err := s.requireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	// A second submit for the same game fails here: the first one already
	// consumed the pending record, so the ratings cannot apply twice.
	pending, err := s.getPending(ctx, sessionID, gameID)
	if err != nil {
		return nil, err
	}

	weight, err := normalizeResult(result)
	if err != nil {
		return nil, err
	}

	squadA, err := s.getSquadForGame(ctx, pending.SquadAID)
	if err != nil {
		return nil, err
	}
	squadB, err := s.getSquadForGame(ctx, pending.SquadBID)
	if err != nil {
		return nil, err
	}
	if len(squadA.MemberIDs) == 0 || len(squadB.MemberIDs) == 0 {
		return nil, fmt.Errorf("%w: a squad has no members", ErrGameStateStale)
	}
	if shared := engine.Overlap(squadA.MemberIDs, squadB.MemberIDs); len(shared) > 0 {
		return nil, &SquadOverlapError{ConflictingIDs: shared}
	}

	attendees, err := s.attendeeRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attendeeByID := make(map[int]*models.Attendee, len(attendees))
	for _, a := range attendees {
		attendeeByID[a.ID] = a
	}

	sideA, playersA, err := ratingSide(squadA, attendeeByID)
	if err != nil {
		return nil, err
	}
	sideB, playersB, err := ratingSide(squadB, attendeeByID)
	if err != nil {
		return nil, err
	}

	playerByID := make(map[int]*models.Player, len(playersA)+len(playersB))
	squadByPlayer := make(map[int]int, len(playersA)+len(playersB))
	for _, p := range playersA {
		playerByID[p.ID] = p
		squadByPlayer[p.ID] = squadA.ID
	}
	for _, p := range playersB {
		playerByID[p.ID] = p
		squadByPlayer[p.ID] = squadB.ID
	}

	updates := engine.UpdateRatings(sideA, sideB, result.ScoreA, result.ScoreB, weight)

	completed := &models.CompletedGame{
		SessionID:  pending.SessionID,
		RoundID:    pending.RoundID,
		SquadAID:   pending.SquadAID,
		SquadBID:   pending.SquadBID,
		GameNumber: pending.GameNumber,
		ScoreA:     result.ScoreA,
		ScoreB:     result.ScoreB,
		Weight:     weight,
		PlayedAt:   time.Now(),
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.completedRepo.Create(ctx, exec, completed); err != nil {
			return err
		}

		participants := make([]*models.GameParticipant, 0, len(updates))
		for _, u := range updates {
			participants = append(participants, &models.GameParticipant{
				PlayerID:  u.PlayerID,
				SquadID:   squadByPlayer[u.PlayerID],
				EloBefore: u.EloBefore,
				EloAfter:  u.EloAfter,
				MuAfter:   u.Mu,
				SigAfter:  u.Sigma,
				Won:       wonFlag(u.Outcome),
			})
		}
		if err := s.completedRepo.CreateParticipants(ctx, exec, completed.ID, participants); err != nil {
			return err
		}
		completed.Participants = participants

		for _, u := range updates {
			player := playerByID[u.PlayerID]
			engine.ApplyUpdate(player, u)
			if err := s.playerRepo.UpdateRatingState(ctx, exec, player); err != nil {
				return err
			}
		}

		return s.pendingRepo.Delete(ctx, exec, pending.ID)
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventGameCompleted, completed))
	return completed, nil
}

// EditCompletedGame deliberately skips the open-session check: score
// corrections usually come in after the session is closed for the night, and
// the edit window alone bounds them.
func (s *scheduleService) EditCompletedGame(ctx context.Context, sessionID, gameID int, result GameResult) (*models.CompletedGame, error) {
	release := s.locks.acquire(sessionID)
	defer release()

	game, err := s.completedRepo.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompletedGameNotFound) {
			return nil, ErrCompletedGameNotFound
		}
		return nil, err
	}
	if game.SessionID != sessionID {
		return nil, ErrCompletedGameNotFound
	}
	if time.Since(game.PlayedAt) > editWindow {
		return nil, ErrEditWindowExpired
	}

	weight, err := normalizeResult(result)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.completedRepo.UpdateResult(ctx, exec, game.ID, result.ScoreA, result.ScoreB, weight)
	})
	if err != nil {
		return nil, err
	}

	game.ScoreA = result.ScoreA
	game.ScoreB = result.ScoreB
	game.Weight = weight

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventGameCompleted, game))
	return game, nil
}

func (s *scheduleService) getPending(ctx context.Context, sessionID, gameID int) (*models.PendingGame, error) {
	game, err := s.pendingRepo.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrPendingGameNotFound) {
			return nil, ErrPendingGameNotFound
		}
		return nil, err
	}
	if game.SessionID != sessionID {
		return nil, ErrPendingGameNotFound
	}
	return game, nil
}

// getSquadForGame maps a vanished squad to a stale-state error: the game was
// scheduled against a round that has since been deleted or rebuilt.
func (s *scheduleService) getSquadForGame(ctx context.Context, squadID int) (*models.Squad, error) {
	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		if errors.Is(err, repositories.ErrSquadNotFound) {
			return nil, fmt.Errorf("%w: squad %d is gone", ErrGameStateStale, squadID)
		}
		return nil, err
	}
	return squad, nil
}

func (s *scheduleService) requireOpen(ctx context.Context, sessionID int) error {
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

// ratingSide resolves a squad's attendee members to their player records and
// pre-game rating state. A member whose attendee record is missing (removed
// after scheduling) makes the game stale.
func ratingSide(squad *models.Squad, attendeeByID map[int]*models.Attendee) ([]engine.PlayerRating, []*models.Player, error) {
	side := make([]engine.PlayerRating, 0, len(squad.MemberIDs))
	players := make([]*models.Player, 0, len(squad.MemberIDs))
	for _, attendeeID := range squad.MemberIDs {
		attendee, ok := attendeeByID[attendeeID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: attendee %d left the session", ErrGameStateStale, attendeeID)
		}
		side = append(side, engine.PlayerRating{
			PlayerID: attendee.Player.ID,
			Mu:       attendee.Player.Mu,
			Sigma:    attendee.Player.Sigma,
		})
		players = append(players, attendee.Player)
	}
	return side, players, nil
}

func normalizeResult(result GameResult) (models.GameWeight, error) {
	if result.ScoreA < 0 || result.ScoreB < 0 {
		return "", ErrScoresInvalid
	}
	switch result.Weight {
	case "":
		return models.WeightStandard, nil
	case models.WeightCasual, models.WeightStandard, models.WeightCompetitive:
		return result.Weight, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrGameWeightInvalid, result.Weight)
	}
}

func wonFlag(o engine.Outcome) *bool {
	if o == engine.OutcomeDraw {
		return nil
	}
	won := o == engine.OutcomeWin
	return &won
}
