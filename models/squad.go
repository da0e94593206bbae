package models

import "time"

// Squad is a named team of attendees active for one round. Color is a
// caller-supplied display tag and carries no meaning inside the engine.
type Squad struct {
	ID        int       `json:"id" db:"id"`
	RoundID   int       `json:"round_id" db:"round_id"`
	Position  int       `json:"position" db:"position"`
	Name      string    `json:"name" db:"name"`
	Color     *string   `json:"color,omitempty" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Attendee IDs in assignment order. An ID appears at most once.
	MemberIDs []int `json:"member_ids" db:"-"`
}
