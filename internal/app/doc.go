// Package app wires application dependencies for the CLI.
//
// It loads the configuration, sets up the log backend and builds the
// concrete stores, relay client and group services for one local identity,
// exposing them through the Wire struct for commands to use.
package app
