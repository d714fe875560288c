// Package canonical produces the byte-deterministic JSON serialization used
// as Ed25519 signing input: object keys sorted, no insignificant whitespace,
// UTF-8, integers minimally encoded.
package canonical
