package library

import "slices"

// Intersect returns the app ids present in every library, without
// duplicates, in ascending order. It is commutative and idempotent.
// With no libraries the result is empty.
func Intersect(libs ...[]int64) []int64 {
	if len(libs) == 0 {
		return []int64{}
	}

	common := make(map[int64]struct{}, len(libs[0]))
	for _, id := range libs[0] {
		common[id] = struct{}{}
	}

	for _, lib := range libs[1:] {
		if len(common) == 0 {
			break
		}
		owned := make(map[int64]struct{}, len(lib))
		for _, id := range lib {
			owned[id] = struct{}{}
		}
		for id := range common {
			if _, ok := owned[id]; !ok {
				delete(common, id)
			}
		}
	}

	out := make([]int64, 0, len(common))
	for id := range common {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
