// Package wire encodes the closed-group envelopes, control messages and
// persisted state in a versioned tag-length-value format.
//
// Every top-level message starts with field 1, a varint format version.
// Decoders reject versions newer than Version and skip unknown fields, so
// new optional fields can be added without breaking older readers.
package wire
