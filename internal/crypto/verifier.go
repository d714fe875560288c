package crypto

import (
	"crypto/ed25519"
	"errors"
)

// ErrUnavailable reports that the Ed25519 primitive could not be
// instantiated. It is absorbed at the verifier boundary and never reaches
// callers of the trust core.
var ErrUnavailable = errors.New("ed25519 primitive unavailable")

// Result of a detached signature verification.
type Result int

const (
	ResultInvalid Result = iota
	ResultValid
	ResultUnavailable
)

// Verifier checks detached Ed25519 signatures. A Verifier is acquired per
// verification and must be released afterwards.
type Verifier interface {
	Verify(publicKey, message, signature []byte) bool
	Release()
}

// VerifierFactory acquires a Verifier, or fails with ErrUnavailable when the
// primitive is absent.
type VerifierFactory func() (Verifier, error)

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

func (ed25519Verifier) Release() {}

// NewVerifier is the default VerifierFactory over crypto/ed25519.
func NewVerifier() (Verifier, error) {
	return ed25519Verifier{}, nil
}

// VerifyDetached acquires a verifier from factory, checks one signature and
// releases the verifier on every exit path, including a panicking primitive.
func VerifyDetached(factory VerifierFactory, publicKey, message, signature []byte) (result Result) {
	v, err := factory()
	if err != nil {
		return ResultUnavailable
	}
	defer v.Release()
	defer func() {
		if recover() != nil {
			result = ResultInvalid
		}
	}()
	if v.Verify(publicKey, message, signature) {
		return ResultValid
	}
	return ResultInvalid
}
