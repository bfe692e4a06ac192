// Package session tracks the 1:1 channels used to deliver group control
// messages to individual members.
package session
