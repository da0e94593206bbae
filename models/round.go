package models

import "time"

// Round is one complete partition of the attendee pool into squads.
// SquadCount is fixed at creation; only memberships and squad names may
// change afterwards.
type Round struct {
	ID         int       `json:"id" db:"id"`
	SessionID  int       `json:"session_id" db:"session_id"`
	Number     int       `json:"number" db:"number"`
	SquadCount int       `json:"squad_count" db:"squad_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	Squads []*Squad `json:"squads,omitempty" db:"-"`
}
