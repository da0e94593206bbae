package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/realtime"
	"github.com/recleague/tracker/repositories"
	"golang.org/x/sync/errgroup"
)

// Broadcaster pushes events to clients watching a session room. Satisfied
// by *realtime.Hub.
type Broadcaster interface {
	BroadcastToRoom(room string, event interface{})
}

const (
	EventAttendeesChanged = "ATTENDEES_CHANGED"
	EventRoundChanged     = "ROUND_CHANGED"
	EventScheduleChanged  = "SCHEDULE_CHANGED"
	EventGameCompleted    = "GAME_COMPLETED"
)

type CreateSessionInput struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

type SessionService interface {
	CreateSession(ctx context.Context, teamID int, input CreateSessionInput) (*models.Session, error)
	// GetSessionState assembles the full session: roster, rounds with their
	// squads, and both game lists.
	GetSessionState(ctx context.Context, sessionID int) (*models.Session, error)
	ListSessions(ctx context.Context, teamID int) ([]*models.Session, error)
	CloseSession(ctx context.Context, sessionID int) error
	DeleteSession(ctx context.Context, sessionID int) error

	// AddAttendee registers a player for a session that has no rounds yet.
	// Once rounds exist, newcomers must go through
	// RoundService.AddPlayersToPool so every round gets an assignment.
	AddAttendee(ctx context.Context, sessionID, playerID int) (*models.Attendee, error)
	// RemoveAttendee soft-deletes the attendee and drops them from every
	// squad in the session.
	RemoveAttendee(ctx context.Context, sessionID, attendeeID int) error
}

type sessionService struct {
	txManager     repositories.TxManager
	sessionRepo   repositories.SessionRepository
	attendeeRepo  repositories.AttendeeRepository
	playerRepo    repositories.PlayerRepository
	roundRepo     repositories.RoundRepository
	squadRepo     repositories.SquadRepository
	pendingRepo   repositories.PendingGameRepository
	completedRepo repositories.CompletedGameRepository
	hub           Broadcaster
	locks         *SessionLocks
}

func NewSessionService(
	txManager repositories.TxManager,
	sessionRepo repositories.SessionRepository,
	attendeeRepo repositories.AttendeeRepository,
	playerRepo repositories.PlayerRepository,
	roundRepo repositories.RoundRepository,
	squadRepo repositories.SquadRepository,
	pendingRepo repositories.PendingGameRepository,
	completedRepo repositories.CompletedGameRepository,
	hub Broadcaster,
	locks *SessionLocks,
) SessionService {
	return &sessionService{
		txManager:     txManager,
		sessionRepo:   sessionRepo,
		attendeeRepo:  attendeeRepo,
		playerRepo:    playerRepo,
		roundRepo:     roundRepo,
		squadRepo:     squadRepo,
		pendingRepo:   pendingRepo,
		completedRepo: completedRepo,
		hub:           hub,
		locks:         locks,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, teamID int, input CreateSessionInput) (*models.Session, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: session name is required", ErrValidationFailed)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	session := &models.Session{
		TeamID: teamID,
		Name:   name,
		Date:   date,
		Status: models.SessionOpen,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) GetSessionState(ctx context.Context, sessionID int) (*models.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attendees, err := s.attendeeRepo.ListBySession(gctx, sessionID)
		if err != nil {
			return err
		}
		session.Attendees = attendees
		return nil
	})
	g.Go(func() error {
		rounds, err := s.roundRepo.ListBySession(gctx, sessionID)
		if err != nil {
			return err
		}
		for _, round := range rounds {
			squads, err := s.squadRepo.ListByRound(gctx, round.ID)
			if err != nil {
				return err
			}
			round.Squads = squads
		}
		session.Rounds = rounds
		return nil
	})
	g.Go(func() error {
		pending, err := s.pendingRepo.ListBySession(gctx, sessionID)
		if err != nil {
			return err
		}
		session.PendingGames = pending
		return nil
	})
	g.Go(func() error {
		completed, err := s.completedRepo.ListBySession(gctx, sessionID)
		if err != nil {
			return err
		}
		session.CompletedGames = completed
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) ListSessions(ctx context.Context, teamID int) ([]*models.Session, error) {
	return s.sessionRepo.ListByTeam(ctx, teamID)
}

func (s *sessionService) CloseSession(ctx context.Context, sessionID int) error {
	release := s.locks.acquire(sessionID)
	defer release()

	err := s.sessionRepo.UpdateStatus(ctx, sessionID, models.SessionClosed)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *sessionService) DeleteSession(ctx context.Context, sessionID int) error {
	release := s.locks.acquire(sessionID)
	defer release()

	err := s.sessionRepo.Delete(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *sessionService) AddAttendee(ctx context.Context, sessionID, playerID int) (*models.Attendee, error) {
	release := s.locks.acquire(sessionID)
	defer release()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionClosed {
		return nil, ErrSessionClosed
	}

	rounds, err := s.roundRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rounds) > 0 {
		return nil, ErrRoundsRequireAssignment
	}

	attendee := &models.Attendee{SessionID: sessionID, PlayerID: playerID}
	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.attendeeRepo.Create(ctx, exec, attendee)
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventAttendeesChanged, attendee))
	return attendee, nil
}

func (s *sessionService) RemoveAttendee(ctx context.Context, sessionID, attendeeID int) error {
	release := s.locks.acquire(sessionID)
	defer release()

	attendee, err := s.attendeeRepo.GetByID(ctx, attendeeID)
	if err != nil {
		if errors.Is(err, repositories.ErrAttendeeNotFound) {
			return ErrAttendeeNotFound
		}
		return err
	}
	if attendee.SessionID != sessionID || attendee.RemovedAt != nil {
		return ErrAttendeeNotFound
	}

	err = s.txManager.WithTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.squadRepo.RemoveAttendeeFromSession(ctx, exec, sessionID, attendeeID); err != nil {
			return err
		}
		return s.attendeeRepo.SoftRemove(ctx, exec, attendeeID, time.Now())
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastToRoom(sessionRoom(sessionID), event(EventAttendeesChanged, map[string]int{"removed_attendee_id": attendeeID}))
	return nil
}

func (s *sessionService) getSession(ctx context.Context, sessionID int) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func sessionRoom(sessionID int) string {
	return realtime.SessionRoom(sessionID)
}

func event(eventType string, payload interface{}) realtime.Event {
	return realtime.Event{Type: eventType, Payload: payload}
}
