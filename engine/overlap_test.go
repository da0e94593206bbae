package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a    []int
		b    []int
		want []int
	}{
		{
			name: "disjoint squads",
			a:    []int{1, 2, 3},
			b:    []int{4, 5, 6},
			want: []int{},
		},
		{
			name: "identical squads",
			a:    []int{1, 2, 3},
			b:    []int{3, 2, 1},
			want: []int{1, 2, 3},
		},
		{
			name: "single shared member",
			a:    []int{1, 2},
			b:    []int{2, 3},
			want: []int{2},
		},
		{
			name: "empty against non-empty",
			a:    []int{},
			b:    []int{1, 2},
			want: []int{},
		},
		{
			name: "duplicate ids counted once",
			a:    []int{2, 2, 1},
			b:    []int{2},
			want: []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlap(tt.a, tt.b))
		})
	}
}
