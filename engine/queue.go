package engine

import (
	"errors"
	"fmt"
	"sort"
)

var ErrReorderMismatch = errors.New("reordered game ids do not match the round's pending games")

// GameSlot pairs a pending game with its session-wide game number.
type GameSlot struct {
	GameID     int
	GameNumber int
}

// Renumber computes new game numbers for one round's pending games after a
// manual reorder. orderedIDs must be a permutation of the round's current
// game IDs. The round's existing number multiset is reassigned across the
// new order, so numbers stay unique session-wide and games in other rounds
// keep both their numbers and their relative position.
func Renumber(current []GameSlot, orderedIDs []int) ([]GameSlot, error) {
	if len(orderedIDs) != len(current) {
		return nil, fmt.Errorf("%w: got %d ids, round has %d games", ErrReorderMismatch, len(orderedIDs), len(current))
	}

	known := make(map[int]struct{}, len(current))
	numbers := make([]int, 0, len(current))
	for _, slot := range current {
		known[slot.GameID] = struct{}{}
		numbers = append(numbers, slot.GameNumber)
	}
	sort.Ints(numbers)

	seen := make(map[int]struct{}, len(orderedIDs))
	out := make([]GameSlot, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: unknown game id %d", ErrReorderMismatch, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate game id %d", ErrReorderMismatch, id)
		}
		seen[id] = struct{}{}
		out = append(out, GameSlot{GameID: id, GameNumber: numbers[i]})
	}
	return out, nil
}

// NextGameNumber returns the number for a freshly appended game given the
// highest number already used in the session, completed games included.
// Removals leave gaps on purpose; only uniqueness and order matter.
func NextGameNumber(sessionMax int) int {
	return sessionMax + 1
}
