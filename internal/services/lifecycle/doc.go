// Package lifecycle creates closed groups, changes their membership and
// applies the control updates other members send.
//
// Every operation on a group runs under that group's lock, so local
// operations and received updates for the same group never interleave.
// State is persisted before updates are dispatched; dispatch failures are
// reported but never roll state back.
//
// Forward secrecy on removal: whenever members leave or are removed, every
// remaining member drops all ratchets of the group and sends a fresh one of
// its own to the others, so removed members cannot read later messages.
package lifecycle
