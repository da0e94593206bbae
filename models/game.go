package models

import "time"

type GameStatus string

const (
	GameStatusPending   GameStatus = "pending"
	GameStatusCompleted GameStatus = "completed"
)

// GameWeight scales rating deltas by the declared seriousness of a game.
type GameWeight string

const (
	WeightCasual      GameWeight = "casual"
	WeightStandard    GameWeight = "standard"
	WeightCompetitive GameWeight = "competitive"
)

// PendingGame is a scheduled squad pairing awaiting a score. GameNumber is
// unique and strictly increasing within a session and doubles as the sort
// key inside a round.
type PendingGame struct {
	ID         int       `json:"id" db:"id"`
	SessionID  int       `json:"session_id" db:"session_id"`
	RoundID    int       `json:"round_id" db:"round_id"`
	SquadAID   int       `json:"squad_a_id" db:"squad_a_id"`
	SquadBID   int       `json:"squad_b_id" db:"squad_b_id"`
	GameNumber int       `json:"game_number" db:"game_number"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CompletedGame is the immutable record a pending game turns into, except
// that scores and weight may be corrected within a bounded window after the
// match date. Participant rating deltas are captured once and never
// recomputed.
type CompletedGame struct {
	ID         int        `json:"id" db:"id"`
	SessionID  int        `json:"session_id" db:"session_id"`
	RoundID    int        `json:"round_id" db:"round_id"`
	SquadAID   int        `json:"squad_a_id" db:"squad_a_id"`
	SquadBID   int        `json:"squad_b_id" db:"squad_b_id"`
	GameNumber int        `json:"game_number" db:"game_number"`
	ScoreA     int        `json:"score_a" db:"score_a"`
	ScoreB     int        `json:"score_b" db:"score_b"`
	Weight     GameWeight `json:"weight" db:"weight"`
	PlayedAt   time.Time  `json:"played_at" db:"played_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`

	Participants []*GameParticipant `json:"participants,omitempty" db:"-"`
}

// GameParticipant is the per-player audit snapshot taken when a game is
// completed.
type GameParticipant struct {
	ID        int     `json:"id" db:"id"`
	GameID    int     `json:"game_id" db:"game_id"`
	PlayerID  int     `json:"player_id" db:"player_id"`
	SquadID   int     `json:"squad_id" db:"squad_id"`
	EloBefore int     `json:"elo_before" db:"elo_before"`
	EloAfter  int     `json:"elo_after" db:"elo_after"`
	MuAfter   float64 `json:"mu_after" db:"mu_after"`
	SigAfter  float64 `json:"sigma_after" db:"sigma_after"`
	Won       *bool   `json:"won,omitempty" db:"won"`
}
