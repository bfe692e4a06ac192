// Package relay implements the storage-node side of message delivery for
// development and tests, and the client used to talk to it.
//
// A relay keeps opaque envelopes per public key. Clients store a message
// under a group or user public key and later fetch every envelope stored
// after the last hash they have seen. The relay never sees plaintext.
//
// HTTP API
//
//	GET /swarm/{pk}
//	    Return the nodes responsible for {pk}. A single relay answers with
//	    itself.
//
//	POST /msg/{pk}
//	    Store the request body, base64 encoded in {"data": ...}, under {pk}.
//
//	GET /msg/{pk}?last_hash=H
//	    Return the envelopes stored under {pk} after H, oldest first. An
//	    empty or unknown H returns everything retained.
//
// Memory is a NetworkLayer over an in-process Mailbox for tests and
// single-process setups. HTTP is the NetworkLayer that talks to a Server.
package relay
