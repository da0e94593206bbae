package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

const (
	MinSquadCount = 2
	MaxSquadCount = 8
)

var (
	ErrSquadCountOutOfRange = fmt.Errorf("squad count must be between %d and %d", MinSquadCount, MaxSquadCount)
	ErrSquadIndexInvalid    = errors.New("squad index out of range")
	ErrSquadAtCapacity      = errors.New("target squad is at ideal capacity")
	ErrAttendeeNotInPool    = errors.New("attendee is not part of the pool")
)

type Strategy string

const (
	StrategyRandom   Strategy = "random"
	StrategyBalanced Strategy = "balanced"
)

type Scope string

const (
	// ScopeUnassigned fills only attendees that currently have no squad.
	ScopeUnassigned Scope = "unassigned"
	// ScopeOverwrite discards the current assignment and rebuilds from the
	// whole pool.
	ScopeOverwrite Scope = "overwrite"
)

// PoolPlayer is one attendee eligible for allocation in a round.
type PoolPlayer struct {
	AttendeeID int
	Elo        int
}

// IdealMax is the advisory per-squad capacity for a pool of the given final
// expected size. Callers must pass the final pool size, not a momentary one,
// so capacity hints do not flap while attendees are still being added.
func IdealMax(poolSize, squadCount int) int {
	if squadCount <= 0 {
		return 0
	}
	return (poolSize + squadCount - 1) / squadCount
}

// Toggle applies single-click manual assignment semantics to squads (member
// ID lists indexed by squad position). Clicking the squad the attendee is
// already in unassigns them; clicking another squad moves them, which is
// hard-blocked once the target reached idealMax. Bulk edits go through
// ValidateAssignment instead and are allowed to exceed capacity.
func Toggle(squads [][]int, attendeeID, target, idealMax int) error {
	if target < 0 || target >= len(squads) {
		return ErrSquadIndexInvalid
	}

	current := -1
	for i, members := range squads {
		for _, id := range members {
			if id == attendeeID {
				current = i
				break
			}
		}
	}

	if current == target {
		squads[target] = removeID(squads[target], attendeeID)
		return nil
	}
	if len(squads[target]) >= idealMax {
		return ErrSquadAtCapacity
	}
	if current >= 0 {
		squads[current] = removeID(squads[current], attendeeID)
	}
	squads[target] = append(squads[target], attendeeID)
	return nil
}

// AssignResult reports the outcome of an automatic allocation run.
// Unplaced lists attendees that could not be seated because every squad was
// already at capacity; their absence is reported, never silently dropped.
type AssignResult struct {
	Squads   [][]int
	Unplaced []int
}

// AutoAssign partitions the pool into len(squads) squads using the given
// strategy. With ScopeUnassigned the existing assignment is kept and only
// unseated attendees are placed; with ScopeOverwrite the assignment is
// rebuilt from scratch. Deterministic for StrategyBalanced given a fixed
// pool order; StrategyRandom draws from rng.
func AutoAssign(pool []PoolPlayer, squads [][]int, strategy Strategy, scope Scope, rng *rand.Rand) (AssignResult, error) {
	n := len(squads)
	if n < MinSquadCount || n > MaxSquadCount {
		return AssignResult{}, ErrSquadCountOutOfRange
	}

	out := make([][]int, n)
	if scope == ScopeOverwrite {
		for i := range out {
			out[i] = []int{}
		}
	} else {
		for i, members := range squads {
			out[i] = append([]int{}, members...)
		}
	}

	assigned := make(map[int]struct{})
	for _, members := range out {
		for _, id := range members {
			assigned[id] = struct{}{}
		}
	}

	candidates := make([]PoolPlayer, 0, len(pool))
	for _, p := range pool {
		if _, ok := assigned[p.AttendeeID]; !ok {
			candidates = append(candidates, p)
		}
	}

	idealMax := IdealMax(len(pool), n)

	var unplaced []int
	switch strategy {
	case StrategyRandom:
		unplaced = assignRandom(candidates, out, idealMax, rng)
	case StrategyBalanced:
		unplaced = assignBalanced(pool, candidates, out, idealMax)
		movable := make(map[int]struct{}, len(candidates))
		for _, p := range candidates {
			movable[p.AttendeeID] = struct{}{}
		}
		refineByAverage(out, eloIndex(pool), movable)
	default:
		return AssignResult{}, fmt.Errorf("unknown allocation strategy %q", strategy)
	}

	return AssignResult{Squads: out, Unplaced: unplaced}, nil
}

// assignRandom shuffles the candidates and deals them round-robin starting
// from a rotating offset, skipping squads already at capacity.
func assignRandom(candidates []PoolPlayer, squads [][]int, idealMax int, rng *rand.Rand) []int {
	shuffled := append([]PoolPlayer{}, candidates...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	unplaced := []int{}
	offset := rng.Intn(len(squads))
	for _, p := range shuffled {
		placed := false
		for k := 0; k < len(squads); k++ {
			idx := (offset + k) % len(squads)
			if len(squads[idx]) < idealMax {
				squads[idx] = append(squads[idx], p.AttendeeID)
				offset = idx + 1
				placed = true
				break
			}
		}
		if !placed {
			unplaced = append(unplaced, p.AttendeeID)
		}
	}
	return unplaced
}

// assignBalanced seats candidates strongest-first into the squad with the
// lowest aggregate rating among those below capacity, ties broken by squad
// index. Greedy and deterministic, not globally optimal.
func assignBalanced(pool, candidates []PoolPlayer, squads [][]int, idealMax int) []int {
	eloByID := eloIndex(pool)

	sums := make([]int, len(squads))
	for i, members := range squads {
		for _, id := range members {
			sums[i] += eloByID[id]
		}
	}

	ordered := append([]PoolPlayer{}, candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Elo > ordered[j].Elo
	})

	unplaced := []int{}
	for _, p := range ordered {
		best := -1
		for i := range squads {
			if len(squads[i]) >= idealMax {
				continue
			}
			if best == -1 || sums[i] < sums[best] {
				best = i
			}
		}
		if best == -1 {
			unplaced = append(unplaced, p.AttendeeID)
			continue
		}
		squads[best] = append(squads[best], p.AttendeeID)
		sums[best] += p.Elo
	}
	return unplaced
}

// ValidateAssignment checks a full-round membership edit: every assigned ID
// must come from the pool and no attendee may appear in more than one squad.
// Returns the squad positions that exceed idealMax as advisory warnings.
func ValidateAssignment(poolIDs []int, squads [][]int, idealMax int) ([]int, error) {
	inPool := make(map[int]struct{}, len(poolIDs))
	for _, id := range poolIDs {
		inPool[id] = struct{}{}
	}

	seen := make(map[int]int)
	var over []int
	for i, members := range squads {
		if len(members) > idealMax {
			over = append(over, i)
		}
		for _, id := range members {
			if _, ok := inPool[id]; !ok {
				return nil, fmt.Errorf("%w: attendee %d", ErrAttendeeNotInPool, id)
			}
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("attendee %d assigned to both squad %d and squad %d", id, prev, i)
			}
			seen[id] = i
		}
	}
	return over, nil
}

// refineByAverage polishes the greedy result with deterministic
// single-pair swaps between squads until no swap reduces the spread of
// squad average ratings. Only attendees in the movable set may trade
// places, so seats that predate the run stay put. Sizes never change,
// so capacity stays intact.
func refineByAverage(squads [][]int, eloByID map[int]int, movable map[int]struct{}) {
	const maxPasses = 64

	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		for i := 0; i < len(squads); i++ {
			for j := i + 1; j < len(squads); j++ {
				if trySwap(squads, i, j, eloByID, movable) {
					improved = true
				}
			}
		}
		if !improved {
			return
		}
	}
}

func trySwap(squads [][]int, i, j int, eloByID map[int]int, movable map[int]struct{}) bool {
	if len(squads[i]) == 0 || len(squads[j]) == 0 {
		return false
	}
	swapped := false
	for a := range squads[i] {
		if _, ok := movable[squads[i][a]]; !ok {
			continue
		}
		for b := range squads[j] {
			if _, ok := movable[squads[j][b]]; !ok {
				continue
			}
			before := averageSpread(squads, eloByID)
			squads[i][a], squads[j][b] = squads[j][b], squads[i][a]
			if averageSpread(squads, eloByID) < before-1e-9 {
				swapped = true
				continue
			}
			squads[i][a], squads[j][b] = squads[j][b], squads[i][a]
		}
	}
	return swapped
}

// averageSpread is the variance of squad average ratings; zero means
// perfectly even squads.
func averageSpread(squads [][]int, eloByID map[int]int) float64 {
	avgs := make([]float64, 0, len(squads))
	var total float64
	for _, members := range squads {
		if len(members) == 0 {
			continue
		}
		var sum float64
		for _, id := range members {
			sum += float64(eloByID[id])
		}
		avg := sum / float64(len(members))
		avgs = append(avgs, avg)
		total += avg
	}
	if len(avgs) == 0 {
		return 0
	}
	mean := total / float64(len(avgs))
	var spread float64
	for _, a := range avgs {
		spread += (a - mean) * (a - mean)
	}
	return spread
}

func eloIndex(pool []PoolPlayer) map[int]int {
	m := make(map[int]int, len(pool))
	for _, p := range pool {
		m[p.AttendeeID] = p.Elo
	}
	return m
}

func removeID(members []int, id int) []int {
	out := members[:0]
	for _, m := range members {
		if m != id {
			out = append(out, m)
		}
	}
	return out
}
