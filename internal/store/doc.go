// Package store provides bolt-backed persistence for keytrust.
//
// It contains the concrete implementation of domain.TrustStore, serialising
// records as JSON inside per-user nested buckets. Reads of a user's key sets
// go through a small LRU cache that is invalidated on writes for that user.
//
// Database schema:
//
//	users/<user-id>                       -> JSON domain.UserRecord
//	devices/<user-id>/<device-id>         -> JSON domain.DeviceKeyRecord
//	cross_signing/<user-id>/<public-key>  -> JSON domain.CrossSigningKeyRecord
//	info/schema-version                   -> decimal schema version
package store
