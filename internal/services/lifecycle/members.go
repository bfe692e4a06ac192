package lifecycle

import (
	"slices"

	"closedgroups/internal/domain"
)

// dedupe returns keys without duplicates, keeping first occurrences in order.
func dedupe(keys []domain.X25519Public) []domain.X25519Public {
	seen := make(map[domain.X25519Public]struct{}, len(keys))
	out := make([]domain.X25519Public, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// withMember returns keys deduplicated with k present exactly once.
func withMember(keys []domain.X25519Public, k domain.X25519Public) []domain.X25519Public {
	out := dedupe(keys)
	if !slices.Contains(out, k) {
		out = append(out, k)
	}
	return out
}

// minus returns the keys of a that are not in b, in a's order.
func minus(a, b []domain.X25519Public) []domain.X25519Public {
	var out []domain.X25519Public
	for _, k := range a {
		if !slices.Contains(b, k) {
			out = append(out, k)
		}
	}
	return out
}

// intersect returns the keys of a that are also in b, in a's order.
func intersect(a, b []domain.X25519Public) []domain.X25519Public {
	var out []domain.X25519Public
	for _, k := range a {
		if slices.Contains(b, k) {
			out = append(out, k)
		}
	}
	return out
}

// sameSet reports whether a and b hold the same keys, ignoring order and
// duplicates.
func sameSet(a, b []domain.X25519Public) bool {
	return len(minus(a, b)) == 0 && len(minus(b, a)) == 0
}

// subset reports whether every key of a is in b.
func subset(a, b []domain.X25519Public) bool {
	return len(minus(a, b)) == 0
}
