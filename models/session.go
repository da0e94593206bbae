package models

import "time"

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Session is a single play event: an attendee roster, one or more rounds of
// squads built from it, and the games scheduled between those squads.
type Session struct {
	ID        int           `json:"id" db:"id"`
	TeamID    int           `json:"team_id" db:"team_id"`
	Name      string        `json:"name" db:"name"`
	Date      time.Time     `json:"date" db:"date"`
	Status    SessionStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`

	Attendees      []*Attendee      `json:"attendees,omitempty" db:"-"`
	Rounds         []*Round         `json:"rounds,omitempty" db:"-"`
	PendingGames   []*PendingGame   `json:"pending_games,omitempty" db:"-"`
	CompletedGames []*CompletedGame `json:"completed_games,omitempty" db:"-"`
}

// Attendee joins a player to one session. Removal is a soft delete and
// cascades to every squad membership the attendee holds in that session.
type Attendee struct {
	ID        int        `json:"id" db:"id"`
	SessionID int        `json:"session_id" db:"session_id"`
	PlayerID  int        `json:"player_id" db:"player_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty" db:"removed_at"`

	Player *Player `json:"player,omitempty" db:"-"`
}
