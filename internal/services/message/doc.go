// Package message moves closed-group traffic between the network and the
// group components.
//
// Sender turns text and control updates into group messages (through the
// group cipher) or direct messages (sealed to one member), and stores them
// on the network. Receiver does the reverse for envelopes fetched by the
// poller: it decrypts them, hands text to the MessageSink and control
// updates to the UpdateHandler.
package message
