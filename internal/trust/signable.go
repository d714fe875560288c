package trust

import (
	"encoding/base64"
	"encoding/json"

	"keytrust/internal/canonical"
	"keytrust/internal/domain"
)

// Key is the contract shared by DeviceKey and CrossSigningKey.
type Key interface {
	UserID() domain.UserID
	// Identifier is the key's local id: the device id for device keys, the
	// public key for cross-signing keys. Empty on malformed input; a key
	// with an empty identifier is never valid.
	Identifier() string
	// Ed25519Key returns the key's Ed25519 public material, if present.
	Ed25519Key() (string, bool)
	DirectVerified() bool
	Blocked() bool
	Verified() bool
	Signed() bool
	EncryptToDevice() bool
	IsValid() bool
	SigningContent() ([]byte, error)
	SetVerified(verified bool) error
	SetBlocked(blocked bool) error
	// SameKey reports equality by (user id, identifier).
	SameKey(other Key) bool

	signatureMap() map[domain.UserID]map[string]string
	cachedSignature(signer domain.UserID, fullKeyID string) (valid, ok bool)
	storeSignature(signer domain.UserID, fullKeyID string, valid bool)
}

// keyContent is the upstream JSON shape of a key object.
type keyContent struct {
	UserID     domain.UserID                       `json:"user_id"`
	DeviceID   domain.DeviceID                     `json:"device_id"`
	Algorithms []string                            `json:"algorithms"`
	Usage      []string                            `json:"usage"`
	Keys       map[string]string                   `json:"keys"`
	Signatures map[domain.UserID]map[string]string `json:"signatures"`
	Unsigned   map[string]any                      `json:"unsigned"`
}

// signableKey carries the state common to both key kinds. It holds the
// upstream content verbatim; the canonical signing payload and signature
// verification results are memoized per instance and never persisted.
type signableKey struct {
	dir        *Directory
	userID     domain.UserID
	identifier string
	keys       map[string]string
	signatures map[domain.UserID]map[string]string
	unsigned   map[string]any
	content    json.RawMessage

	directVerified bool
	blockedFlag    bool

	sigCache       map[domain.UserID]map[string]bool
	signingContent []byte
}

func (s *signableKey) UserID() domain.UserID { return s.userID }
func (s *signableKey) Identifier() string    { return s.identifier }

func (s *signableKey) DirectVerified() bool { return s.directVerified }

// Ed25519Key returns the ed25519:<identifier> entry from the key map.
func (s *signableKey) Ed25519Key() (string, bool) {
	if s.identifier == "" {
		return "", false
	}
	k, ok := s.keys[domain.FullKeyID(domain.AlgorithmEd25519, s.identifier)]
	return k, ok && k != ""
}

// SigningContent returns the canonical signing payload of the key, computed
// once from the stored content.
func (s *signableKey) SigningContent() ([]byte, error) {
	if s.signingContent != nil {
		return s.signingContent, nil
	}
	payload, err := canonical.SigningPayload(s.content)
	if err != nil {
		return nil, err
	}
	s.signingContent = payload
	return payload, nil
}

// Content returns the upstream JSON as received.
func (s *signableKey) Content() json.RawMessage { return s.content }

// Unsigned returns the opaque non-signed metadata map.
func (s *signableKey) Unsigned() map[string]any { return s.unsigned }

func (s *signableKey) signatureMap() map[domain.UserID]map[string]string {
	return s.signatures
}

func (s *signableKey) cachedSignature(signer domain.UserID, fullKeyID string) (bool, bool) {
	valid, ok := s.sigCache[signer][fullKeyID]
	return valid, ok
}

func (s *signableKey) storeSignature(signer domain.UserID, fullKeyID string, valid bool) {
	if s.sigCache == nil {
		s.sigCache = make(map[domain.UserID]map[string]bool)
	}
	if s.sigCache[signer] == nil {
		s.sigCache[signer] = make(map[string]bool)
	}
	s.sigCache[signer][fullKeyID] = valid
}

// verifiedAs implements the shared verified rule; self supplies the concrete
// blocked semantics of the key kind.
func (s *signableKey) verifiedAs(self Key) bool {
	if s.identifier == "" || self.Blocked() {
		return false
	}
	if s.directVerified {
		return true
	}
	return s.dir.hasValidSignatureChain(self, true, nil, nil)
}

func (s *signableKey) signedAs(self Key) bool {
	return s.dir.hasValidSignatureChain(self, false, nil, nil)
}

// encryptToDeviceAs reports whether message payloads may be encrypted to this
// key. Without a verified master key for the owning user there is no identity
// anchor yet; refusing to encrypt then would deadlock first contact, so the
// non-strict posture permits it.
func (s *signableKey) encryptToDeviceAs(self Key) bool {
	if self.Blocked() || s.identifier == "" {
		return false
	}
	if _, ok := s.Ed25519Key(); !ok {
		return false
	}
	if master := s.dir.masterKey(s.userID); master != nil && master.Verified() {
		return self.Verified()
	}
	if s.dir.strict {
		return self.Verified()
	}
	return true
}

// sameKey reports equality by (user id, identifier).
func (s *signableKey) sameKey(other Key) bool {
	return other != nil && s.userID == other.UserID() && s.identifier == other.Identifier()
}

// requestCoSign asks the local cross-signing component to co-sign this key
// when it reports the key as signable. The signing itself is dispatched
// fire-and-forget through the directory.
func (s *signableKey) requestCoSign() {
	if s.dir.signer == nil {
		return
	}
	if !s.dir.signer.Signable(s.userID, s.identifier) {
		return
	}
	s.dir.dispatchSign(s.userID, s.identifier)
}

// decodeBase64 accepts both unpadded and padded standard base64, as key
// material appears in the wild.
func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
