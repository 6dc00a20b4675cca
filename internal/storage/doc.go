// Package storage provides Lockbox's encrypted, versioned key-value engine.
//
// An Engine owns two boxes under its base directory:
//
//   - primary: user entries as base64 AES-CBC ciphertext of their JSON
//     encoding, plus the schema version under VersionKey
//   - backups: named JSON snapshots of the primary box
//
// Initialize loads the key material, opens both boxes and runs the pending
// schema migrations up to the target version before the engine accepts
// reads and writes. Every failure is reported as an *Error carrying a Kind.
//
// The engine is single-writer: callers serialize calls themselves.
package storage
