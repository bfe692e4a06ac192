// Package identity manages creation, encryption and loading of the local identity.
//
// It enforces the passphrase policy, generates the X25519 key pair that names
// the user in every group, and persists it via the domain.IdentityStore.
package identity
