// Package groupcipher encrypts and decrypts closed-group messages.
//
// A message is encrypted twice. The inner layer uses the next message key of
// the sender's ratchet; the outer layer is a sealed box to the group public
// key, so only holders of the group private key can see who sent what.
package groupcipher
