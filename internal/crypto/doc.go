// Package crypto wraps the signature primitives used by keytrust.
//
// Contents
//
//   - Detached Ed25519 verification behind an acquire/release factory that
//     models an absent primitive (NewVerifier, VerifyDetached)
//   - Ed25519 and X25519 key generation for device identities
//     (GenerateEd25519, GenerateX25519)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// Verification results are tri-state: a signature is valid, invalid, or the
// primitive was unavailable. Callers decide per call site what unavailable
// means.
package crypto
