// Package trust implements cross-signing trust evaluation over a directory
// of user key bundles.
//
// A Directory holds one UserKeyBundle per known user; bundles hold device
// keys and cross-signing keys. Trust relationships between keys are resolved
// through (user id, key id) lookups against the directory, never through
// references between key objects, so the ownership graph stays a forest.
//
// The central query is the recursive signature-chain walk: a key is
// cross-verified when a chain of valid Ed25519 signatures leads from it to an
// anchor, honoring cycles, blocked signers and the transitive-trust rule that
// only the owning user and the local user may attest a key.
package trust
