package engine

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdealMax(t *testing.T) {
	tests := []struct {
		poolSize   int
		squadCount int
		want       int
	}{
		{poolSize: 7, squadCount: 2, want: 4},
		{poolSize: 8, squadCount: 2, want: 4},
		{poolSize: 9, squadCount: 2, want: 5},
		{poolSize: 10, squadCount: 3, want: 4},
		{poolSize: 0, squadCount: 2, want: 0},
		{poolSize: 5, squadCount: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IdealMax(tt.poolSize, tt.squadCount),
			"IdealMax(%d, %d)", tt.poolSize, tt.squadCount)
	}
}

func TestToggle(t *testing.T) {
	t.Run("assign to empty squad", func(t *testing.T) {
		squads := [][]int{{}, {}}
		require.NoError(t, Toggle(squads, 1, 0, 2))
		assert.Equal(t, [][]int{{1}, {}}, squads)
	})

	t.Run("toggling same squad unassigns", func(t *testing.T) {
		squads := [][]int{{1, 2}, {}}
		require.NoError(t, Toggle(squads, 1, 0, 2))
		assert.Equal(t, [][]int{{2}, {}}, squads)
	})

	t.Run("clicking another squad moves the attendee", func(t *testing.T) {
		squads := [][]int{{1}, {2}}
		require.NoError(t, Toggle(squads, 1, 1, 2))
		assert.Equal(t, [][]int{{}, {2, 1}}, squads)
	})

	t.Run("full target squad blocks the move", func(t *testing.T) {
		squads := [][]int{{1}, {2, 3}}
		err := Toggle(squads, 1, 1, 2)
		assert.ErrorIs(t, err, ErrSquadAtCapacity)
		assert.Equal(t, [][]int{{1}, {2, 3}}, squads)
	})

	t.Run("unassign is allowed even when squad is over capacity", func(t *testing.T) {
		squads := [][]int{{1, 2, 3}, {}}
		require.NoError(t, Toggle(squads, 2, 0, 2))
		assert.Equal(t, [][]int{{1, 3}, {}}, squads)
	})

	t.Run("invalid squad index", func(t *testing.T) {
		squads := [][]int{{}, {}}
		assert.ErrorIs(t, Toggle(squads, 1, 2, 2), ErrSquadIndexInvalid)
		assert.ErrorIs(t, Toggle(squads, 1, -1, 2), ErrSquadIndexInvalid)
	})
}

func poolOf(elos ...int) []PoolPlayer {
	pool := make([]PoolPlayer, 0, len(elos))
	for i, e := range elos {
		pool = append(pool, PoolPlayer{AttendeeID: i + 1, Elo: e})
	}
	return pool
}

func assignedOnce(t *testing.T, squads [][]int) map[int]int {
	t.Helper()
	seen := make(map[int]int)
	for i, members := range squads {
		for _, id := range members {
			_, dup := seen[id]
			require.Falsef(t, dup, "attendee %d assigned twice", id)
			seen[id] = i
		}
	}
	return seen
}

func TestAutoAssignRejectsBadSquadCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := AutoAssign(poolOf(100, 200), [][]int{{}}, StrategyRandom, ScopeOverwrite, rng)
	assert.ErrorIs(t, err, ErrSquadCountOutOfRange)

	nine := make([][]int, 9)
	_, err = AutoAssign(poolOf(100, 200), nine, StrategyRandom, ScopeOverwrite, rng)
	assert.ErrorIs(t, err, ErrSquadCountOutOfRange)
}

func TestAutoAssignRandomPlacesEveryone(t *testing.T) {
	pool := poolOf(800, 900, 1000, 1100, 1200, 1300, 1400)
	rng := rand.New(rand.NewSource(42))

	res, err := AutoAssign(pool, [][]int{{}, {}}, StrategyRandom, ScopeOverwrite, rng)
	require.NoError(t, err)
	assert.Empty(t, res.Unplaced)

	seen := assignedOnce(t, res.Squads)
	assert.Len(t, seen, 7)
	for _, members := range res.Squads {
		assert.LessOrEqual(t, len(members), 4)
	}
}

func TestAutoAssignUnassignedScopeKeepsExisting(t *testing.T) {
	pool := poolOf(800, 900, 1000, 1100)
	existing := [][]int{{1}, {2}}
	rng := rand.New(rand.NewSource(7))

	res, err := AutoAssign(pool, existing, StrategyRandom, ScopeUnassigned, rng)
	require.NoError(t, err)
	assert.Empty(t, res.Unplaced)

	seen := assignedOnce(t, res.Squads)
	assert.Equal(t, 0, seen[1])
	assert.Equal(t, 1, seen[2])
	assert.Len(t, seen, 4)

	// Input squads are not mutated.
	assert.Equal(t, [][]int{{1}, {2}}, existing)
}

func TestAutoAssignBalancedUnassignedKeepsSeats(t *testing.T) {
	// The rating gap between the pre-seated attendees makes a cross-squad
	// swap the best way to even the averages, so the refinement pass must
	// not be allowed to take it.
	pool := poolOf(1200, 800, 1000, 1000)
	existing := [][]int{{1}, {2}}

	res, err := AutoAssign(pool, existing, StrategyBalanced, ScopeUnassigned, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Unplaced)

	seen := assignedOnce(t, res.Squads)
	assert.Equal(t, 0, seen[1])
	assert.Equal(t, 1, seen[2])
	assert.Len(t, seen, 4)
}

func TestAutoAssignReportsUnplaceable(t *testing.T) {
	// Stale members still seated but no longer in the pool push both squads
	// past the capacity computed from the pool, so the newcomers cannot be
	// seated anywhere. They must be reported, not dropped.
	existing := [][]int{{90, 91}, {92, 93}}
	pool := poolOf(1000, 1100)
	rng := rand.New(rand.NewSource(3))

	res, err := AutoAssign(pool, existing, StrategyRandom, ScopeUnassigned, rng)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, res.Unplaced)
}

func TestAutoAssignBalancedDeterministic(t *testing.T) {
	pool := poolOf(1450, 820, 1210, 990, 1120, 760, 1330)

	first, err := AutoAssign(pool, [][]int{{}, {}}, StrategyBalanced, ScopeOverwrite, nil)
	require.NoError(t, err)
	second, err := AutoAssign(pool, [][]int{{}, {}}, StrategyBalanced, ScopeOverwrite, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAutoAssignBalancedSevenIntoTwo(t *testing.T) {
	pool := poolOf(1450, 820, 1210, 990, 1120, 760, 1330)

	res, err := AutoAssign(pool, [][]int{{}, {}}, StrategyBalanced, ScopeOverwrite, nil)
	require.NoError(t, err)
	require.Empty(t, res.Unplaced)

	sizes := []int{len(res.Squads[0]), len(res.Squads[1])}
	sort.Ints(sizes)
	assert.Equal(t, []int{3, 4}, sizes)

	elo := eloIndex(pool)
	diff := math.Abs(squadAverage(res.Squads[0], elo) - squadAverage(res.Squads[1], elo))

	// No single cross-squad swap may produce more even squad averages.
	for a := range res.Squads[0] {
		for b := range res.Squads[1] {
			swapped0 := append([]int{}, res.Squads[0]...)
			swapped1 := append([]int{}, res.Squads[1]...)
			swapped0[a], swapped1[b] = swapped1[b], swapped0[a]
			swappedDiff := math.Abs(squadAverage(swapped0, elo) - squadAverage(swapped1, elo))
			assert.LessOrEqual(t, diff, swappedDiff+1e-9,
				"swapping %d and %d evens the squads further", res.Squads[0][a], res.Squads[1][b])
		}
	}
}

func squadAverage(members []int, eloByID map[int]int) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, id := range members {
		sum += float64(eloByID[id])
	}
	return sum / float64(len(members))
}

func TestValidateAssignment(t *testing.T) {
	pool := []int{1, 2, 3, 4, 5}

	t.Run("valid assignment", func(t *testing.T) {
		over, err := ValidateAssignment(pool, [][]int{{1, 2}, {3, 4}}, 3)
		require.NoError(t, err)
		assert.Empty(t, over)
	})

	t.Run("over capacity is a warning, not an error", func(t *testing.T) {
		over, err := ValidateAssignment(pool, [][]int{{1, 2, 3, 4}, {5}}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, over)
	})

	t.Run("attendee in two squads", func(t *testing.T) {
		_, err := ValidateAssignment(pool, [][]int{{1, 2}, {2, 3}}, 3)
		assert.Error(t, err)
	})

	t.Run("attendee outside the pool", func(t *testing.T) {
		_, err := ValidateAssignment(pool, [][]int{{1}, {99}}, 3)
		assert.ErrorIs(t, err, ErrAttendeeNotInPool)
	})
}
