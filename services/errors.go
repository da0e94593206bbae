package services

import (
	"errors"
	"fmt"
)

// Shared sentinel errors used across services and the HTTP error mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules. These are rejected before any state
	// mutation; the operation is a no-op.
	ErrValidationFailed        = errors.New("validation failed")
	ErrPasswordTooShort        = errors.New("password is too short")
	ErrSquadCountInvalid       = errors.New("squad count must be between 2 and 8")
	ErrSquadCountImmutable     = errors.New("squad count cannot change once a round exists")
	ErrSquadsNotDistinct       = errors.New("a game needs two different squads")
	ErrSquadsRoundMismatch     = errors.New("both squads must belong to the same round")
	ErrDuplicatePairing        = errors.New("these squads already have a pending game")
	ErrAttendeeDoubleAssigned  = errors.New("attendee is assigned to more than one squad in the round")
	ErrNewcomerUnassigned      = errors.New("new attendees need a squad assignment for every existing round")
	ErrRoundsRequireAssignment = errors.New("session already has rounds; players must be added with per-round assignments")
	ErrScoresInvalid           = errors.New("scores must be non-negative")
	ErrGameWeightInvalid       = errors.New("unknown game weight")

	// Consistency errors: the caller is working from stale state and must
	// refresh before retrying.
	ErrGameStateStale = errors.New("game references squads or members that no longer exist")

	// Completed games may only be corrected within the edit window after
	// the match date.
	ErrEditWindowExpired = errors.New("completed game can no longer be edited")

	// Conflicts
	ErrSessionClosed = errors.New("session is closed")

	// Auth
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")

	// Entity-specific wrappers around repository lookups, kept separate so
	// handlers can report precise 404s.
	ErrUserNotFound          = errors.New("user not found")
	ErrTeamNotFound          = errors.New("team not found")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrAttendeeNotFound      = errors.New("attendee not found")
	ErrRoundNotFound         = errors.New("round not found")
	ErrSquadNotFound         = errors.New("squad not found")
	ErrPendingGameNotFound   = errors.New("pending game not found")
	ErrCompletedGameNotFound = errors.New("completed game not found")
)

// ErrSquadOverlap marks an attempt to pair or finalize squads that share
// members. Use errors.As with *SquadOverlapError to get the conflicting
// attendees.
var ErrSquadOverlap = errors.New("squads share members")

// SquadOverlapError carries the attendees present in both squads so the
// caller can surface exactly who has to move.
type SquadOverlapError struct {
	ConflictingIDs []int
}

func (e *SquadOverlapError) Error() string {
	return fmt.Sprintf("squads share members: attendees %v", e.ConflictingIDs)
}

func (e *SquadOverlapError) Is(target error) bool {
	return target == ErrSquadOverlap
}
