package engine

import (
	"math"

	"github.com/recleague/tracker/models"
)

// Rating model constants. Sigma shrinks multiplicatively every game, so a
// new player converges from InitialSigma to the floor over roughly a dozen
// games.
const (
	InitialMu    = 25.0
	InitialSigma = 8.0

	sigmaDecay = 0.9
	sigmaFloor = 2.5

	// baseStep is the largest mu swing a maximally uncertain player can see
	// from outcome alone, before margin/underdog/weight scaling.
	baseStep = 2.0

	marginCap    = 12.0
	underdogCap  = 5.0 // mu units of strength gap that saturate the bonus
	underdogGain = 0.1 // bonus per mu unit of gap
)

type Outcome int

const (
	OutcomeLoss Outcome = iota
	OutcomeWin
	OutcomeDraw
)

// PlayerRating is the pre-game rating state of one participant.
type PlayerRating struct {
	PlayerID int
	Mu       float64
	Sigma    float64
}

// RatingUpdate is the post-game state for one participant, with the audit
// snapshots that get persisted alongside the completed game.
type RatingUpdate struct {
	PlayerID  int
	Mu        float64
	Sigma     float64
	EloBefore int
	EloAfter  int
	Outcome   Outcome
}

// WeightMultiplier maps a declared game weight to its delta multiplier.
func WeightMultiplier(w models.GameWeight) float64 {
	switch w {
	case models.WeightCasual:
		return 0.75
	case models.WeightCompetitive:
		return 1.25
	default:
		return 1.0
	}
}

// UpdateRatings computes post-game ratings for every participant of a
// completed game. Pure: the inputs are not mutated and the same inputs
// always produce the same updates. Persisting the result is the caller's
// concern.
//
// The delta for a player is proportional to the gap between actual and
// expected outcome (elo curve over squad mean strength), the score margin
// (bounded), and the player's own uncertainty. When the weaker side wins,
// both sides' deltas grow with the strength gap. The declared game weight
// scales the final magnitude.
func UpdateRatings(sideA, sideB []PlayerRating, scoreA, scoreB int, weight models.GameWeight) []RatingUpdate {
	avgA := meanElo(sideA)
	avgB := meanElo(sideB)

	expectedA := 1.0 / (1.0 + math.Pow(10, (avgB-avgA)/400.0))
	expectedB := 1.0 - expectedA

	outcomeA, outcomeB := outcomes(scoreA, scoreB)

	margin := math.Abs(float64(scoreA - scoreB))
	marginFactor := 1.0 + math.Min(margin, marginCap)/4.0

	bonus := underdogBonus(avgA, avgB, scoreA, scoreB)
	mult := WeightMultiplier(weight)

	updates := make([]RatingUpdate, 0, len(sideA)+len(sideB))
	for _, p := range sideA {
		updates = append(updates, updateOne(p, scoreValue(outcomeA)-expectedA, marginFactor, bonus, mult, outcomeA))
	}
	for _, p := range sideB {
		updates = append(updates, updateOne(p, scoreValue(outcomeB)-expectedB, marginFactor, bonus, mult, outcomeB))
	}
	return updates
}

// ApplyUpdate writes a rating update back onto the player record, including
// win/loss counters and streaks. A draw resets both streaks without
// touching either counter.
func ApplyUpdate(p *models.Player, u RatingUpdate) {
	p.Mu = u.Mu
	p.Sigma = u.Sigma
	switch u.Outcome {
	case OutcomeWin:
		p.Wins++
		p.WinStreak++
		p.LossStreak = 0
	case OutcomeLoss:
		p.Losses++
		p.LossStreak++
		p.WinStreak = 0
	case OutcomeDraw:
		p.WinStreak = 0
		p.LossStreak = 0
	}
}

func updateOne(p PlayerRating, surprise, marginFactor, bonus, weightMult float64, outcome Outcome) RatingUpdate {
	uncertainty := p.Sigma / InitialSigma
	delta := baseStep * surprise * marginFactor * uncertainty * bonus * weightMult

	newMu := p.Mu + delta
	newSigma := math.Max(sigmaFloor, p.Sigma*sigmaDecay)

	return RatingUpdate{
		PlayerID:  p.PlayerID,
		Mu:        newMu,
		Sigma:     newSigma,
		EloBefore: roundElo(p.Mu),
		EloAfter:  roundElo(newMu),
		Outcome:   outcome,
	}
}

// underdogBonus returns the multiplier applied to both sides when the side
// with the lower pre-game mean strength wins, growing with the capped gap.
func underdogBonus(avgA, avgB float64, scoreA, scoreB int) float64 {
	if scoreA == scoreB {
		return 1.0
	}
	winnerAvg, loserAvg := avgA, avgB
	if scoreB > scoreA {
		winnerAvg, loserAvg = avgB, avgA
	}
	if winnerAvg >= loserAvg {
		return 1.0
	}
	gap := (loserAvg - winnerAvg) / 100.0 // back to mu units
	return 1.0 + math.Min(gap, underdogCap)*underdogGain
}

func outcomes(scoreA, scoreB int) (Outcome, Outcome) {
	switch {
	case scoreA > scoreB:
		return OutcomeWin, OutcomeLoss
	case scoreB > scoreA:
		return OutcomeLoss, OutcomeWin
	default:
		return OutcomeDraw, OutcomeDraw
	}
}

func scoreValue(o Outcome) float64 {
	switch o {
	case OutcomeWin:
		return 1.0
	case OutcomeLoss:
		return 0.0
	default:
		return 0.5
	}
}

func meanElo(side []PlayerRating) float64 {
	if len(side) == 0 {
		return InitialMu * 100
	}
	var sum float64
	for _, p := range side {
		sum += p.Mu * 100
	}
	return sum / float64(len(side))
}

func roundElo(mu float64) int {
	return int(math.Round(mu * 100))
}
