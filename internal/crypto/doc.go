// Package crypto exposes the primitives used by closed groups.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicKey, DH)
//   - ChaCha20-Poly1305 with a random nonce prefix (AEADSeal, AEADOpen)
//   - The sealed box used for group and direct wrappers (Seal, Open)
//   - Static-static authenticators for direct messages (StaticMAC)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key types are the fixed-size arrays defined in internal/domain. Callers
// should treat returned secrets as sensitive and rely on Wipe when practical.
package crypto
