// Package main runs the in-memory HTTP relay used by closedgroups during
// development and tests. It stores opaque envelopes per public key until
// they age out of the per-key retention window.
//
// See package internal/relay for the HTTP API.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - Requests are logged at trace level under the RELY subsystem.
//   - The default listen address is :8080.
//
// The relay is intended for local use or as an untrusted middleman on a
// private network. It never sees plaintext or private keys.
package main
