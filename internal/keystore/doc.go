// Package keystore owns the symmetric key material used to encrypt stored
// values.
//
// A Manager generates a 256-bit key and its paired 16-byte IV on first use
// and persists both, as one record, in a Vault: a protected store kept
// outside the data boxes. Later runs load the same record. The key and IV
// are never regenerated independently; either would invalidate every
// existing ciphertext.
//
// The record carries a key version so a rotation path can be added without
// breaking existing data. Only version 1 is produced or accepted today.
//
// Vault implementations:
//
//   - FileVault: one 0600 file per secret, optionally sealed with a
//     passphrase-derived AEAD key
//   - MemoryVault: process-local, for tests
package keystore
