// Package poller periodically fetches new messages for every polled group
// and for the local user's direct inbox, and hands them to an
// EnvelopeHandler.
//
// Within a tick, group addresses are fetched concurrently and handled
// before the direct inbox, so a membership change broadcast to a group is
// applied before the rotated chain keys that members send afterwards. Group
// envelopes that failed only because a sender's ratchet was missing are
// retried once after the direct inbox.
package poller
