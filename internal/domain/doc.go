// Package domain defines the identifier types, persisted record shapes and
// storage interfaces shared by the keytrust core.
//
// It carries no behavior beyond construction and validation helpers; the
// trust evaluation itself lives in internal/trust.
package domain
