// Package store provides persistence for closed-group state.
//
// A KeyValueStore (MemoryKV for tests, LevelDB on disk) backs the typed
// stores:
//   - Sender-key ratchets per (group, sender) (RatchetKVStore)
//   - Group metadata, group private keys and the poll set (GroupKVStore)
//   - 1:1 session records (SessionKVStore)
//
// The local identity lives in its own passphrase-encrypted file
// (IdentityFileStore), written atomically via a temp file and rename.
package store
