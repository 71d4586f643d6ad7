// Package session owns the durable session rows and the rotate-or-reject
// primitive of the refresh protocol.
//
// # System of record
//
// [Store] is the authoritative interface. [PostgresStore] implements it on a
// pgx pool with row-locked rotation; [MemoryStore] mirrors its semantics for
// tests and development. [Cache] is an advisory Redis layer used only by
// validate lookups, never by rotation.
//
// # Rotation contract
//
// Rotate is a compare-and-swap on the row's current token hash. A mismatch
// against an otherwise-active row is treated as replay of a superseded
// token: the whole rotation family is revoked in the same transaction, and
// the [ReuseError] is not returned until that cascade is durable.
//
// # What this package must NOT do
//
//   - Mint, parse, or verify tokens (that belongs to the token package).
//   - Enforce login policy or abuse controls.
//   - Persist raw refresh tokens; only SHA-256 digests are stored.
package session
