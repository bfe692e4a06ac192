package store

// UseFastKDF lowers the scrypt cost of s so tests run quickly.
func UseFastKDF(s *IdentityFileStore) { s.kdf = kdfParams{N: 1 << 10, R: 8, P: 1} }
