// Package internal contains helper utilities that are intentionally private
// to tokenwell: secure random identifier generation and identifier hashing.
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenwell API.
//   - Be imported by any package outside the tokenwell module.
package internal
