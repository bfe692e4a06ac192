package crypto

import "closedgroups/internal/util/memzero"

// Wipe zeroes key material held in b.
func Wipe(b []byte) {
	memzero.Zero(b)
}
