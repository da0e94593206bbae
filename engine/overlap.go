package engine

// Overlap returns the attendee IDs present in both member lists, in the
// order they appear in a. A game between two squads must not be created or
// finalized while this is non-empty.
func Overlap(a, b []int) []int {
	inB := make(map[int]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}

	shared := make([]int, 0)
	seen := make(map[int]struct{}, len(a))
	for _, id := range a {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := inB[id]; ok {
			shared = append(shared, id)
		}
	}
	return shared
}
