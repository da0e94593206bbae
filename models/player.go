package models

import (
	"math"
	"time"
)

// Player carries the persistent rating state. Mu and Sigma are only ever
// changed by the rating engine, exactly once per completed game the player
// took part in.
type Player struct {
	ID         int       `json:"id" db:"id"`
	TeamID     int       `json:"team_id" db:"team_id"`
	Name       string    `json:"name" db:"name"`
	Mu         float64   `json:"mu" db:"mu"`
	Sigma      float64   `json:"sigma" db:"sigma"`
	Wins       int       `json:"wins" db:"wins"`
	Losses     int       `json:"losses" db:"losses"`
	WinStreak  int       `json:"win_streak" db:"win_streak"`
	LossStreak int       `json:"loss_streak" db:"loss_streak"`
	AvatarKey  *string   `json:"-" db:"avatar_key"`
	AvatarURL  *string   `json:"avatar_url,omitempty" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Elo is the display value of the skill mean.
func (p *Player) Elo() int {
	return int(math.Round(p.Mu * 100))
}
