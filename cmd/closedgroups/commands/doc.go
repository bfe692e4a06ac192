// Package commands defines the closedgroups CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init         Create the local identity
//   - fingerprint  Print the identity fingerprint and public key
//   - create       Create a group with the given members
//   - add          Add members to a group
//   - remove       Remove members from a group
//   - leave        Leave a group
//   - rename       Rename a group
//   - groups       List known groups
//   - send         Encrypt and send a text message to a group
//   - poll         Fetch and process new messages
//
// # Implementation
//
// The root command resolves the home directory, loads the optional config
// file, applies flag overrides and sets up logging before any subcommand
// runs. Commands that act on groups unlock the identity with the passphrase
// and build the full dependency graph through app.NewWire.
package commands
