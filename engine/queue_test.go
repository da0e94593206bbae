package engine

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenumberKeepsNumberMultiset(t *testing.T) {
	current := []GameSlot{
		{GameID: 10, GameNumber: 3},
		{GameID: 11, GameNumber: 5},
		{GameID: 12, GameNumber: 9},
	}

	out, err := Renumber(current, []int{12, 10, 11})
	require.NoError(t, err)

	assert.Equal(t, []GameSlot{
		{GameID: 12, GameNumber: 3},
		{GameID: 10, GameNumber: 5},
		{GameID: 11, GameNumber: 9},
	}, out)

	// Same game IDs, same numbers, no duplicates introduced.
	gotNumbers := make([]int, 0, len(out))
	for _, slot := range out {
		gotNumbers = append(gotNumbers, slot.GameNumber)
	}
	sort.Ints(gotNumbers)
	assert.Equal(t, []int{3, 5, 9}, gotNumbers)
}

func TestRenumberNoOpOrder(t *testing.T) {
	current := []GameSlot{
		{GameID: 1, GameNumber: 1},
		{GameID: 2, GameNumber: 2},
	}

	out, err := Renumber(current, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, current, out)
}

func TestRenumberRejectsBadPermutations(t *testing.T) {
	current := []GameSlot{
		{GameID: 1, GameNumber: 1},
		{GameID: 2, GameNumber: 2},
	}

	tests := []struct {
		name    string
		ordered []int
	}{
		{name: "missing game", ordered: []int{1}},
		{name: "unknown game", ordered: []int{1, 3}},
		{name: "duplicate game", ordered: []int{1, 1}},
		{name: "too many games", ordered: []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Renumber(current, tt.ordered)
			assert.ErrorIs(t, err, ErrReorderMismatch)
		})
	}
}

func TestNextGameNumber(t *testing.T) {
	assert.Equal(t, 1, NextGameNumber(0))
	assert.Equal(t, 8, NextGameNumber(7))
}
