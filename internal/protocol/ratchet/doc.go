// Package ratchet implements the symmetric sender-key ratchet used by
// closed groups.
//
// Each (group, sender) pair owns one chain. A step derives
//
//	messageKey = HMAC-SHA256(key=chainKey, data=0x01)
//	chainKey'  = HMAC-SHA256(key=chainKey, data=0x02)
//
// and increments the key index. Message keys that were derived are kept so
// that out-of-order messages can be decrypted later; a key that was never
// derived locally is never re-derived from an older chain key.
//
// Concurrency: the pure functions operate on values. Engine serialises
// every read-modify-write of a stored ratchet per (group, sender).
package ratchet
