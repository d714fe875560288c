package trust

import (
	"encoding/json"

	"github.com/pkg/errors"

	"keytrust/internal/domain"
)

// CrossSigningKey is a long-lived identity-layer key with one or more usage
// labels (master, self_signing, user_signing).
type CrossSigningKey struct {
	signableKey
	usage []string
}

func newCrossSigningKey(dir *Directory, rec domain.CrossSigningKeyRecord) (*CrossSigningKey, error) {
	var content keyContent
	if err := json.Unmarshal(rec.Content, &content); err != nil {
		return nil, errors.Wrap(err, "decode cross-signing key content")
	}
	identifier := rec.PublicKey
	if identifier == "" {
		// Derive from the key map: the identifier of a cross-signing key is
		// its own public key.
		for fullKeyID := range content.Keys {
			if algo, id, ok := domain.SplitKeyID(fullKeyID); ok && algo == domain.AlgorithmEd25519 {
				identifier = id
				break
			}
		}
	}
	return &CrossSigningKey{
		signableKey: signableKey{
			dir:            dir,
			userID:         rec.UserID,
			identifier:     identifier,
			keys:           content.Keys,
			signatures:     content.Signatures,
			unsigned:       content.Unsigned,
			content:        rec.Content,
			directVerified: rec.Verified,
			blockedFlag:    rec.Blocked,
		},
		usage: content.Usage,
	}, nil
}

// PublicKey is an alias of the key's identifier.
func (c *CrossSigningKey) PublicKey() string { return c.identifier }

func (c *CrossSigningKey) Usage() []string { return c.usage }

// HasUsage reports whether the key carries the given usage label.
func (c *CrossSigningKey) HasUsage(label string) bool {
	for _, u := range c.usage {
		if u == label {
			return true
		}
	}
	return false
}

func (c *CrossSigningKey) Blocked() bool { return c.blockedFlag }

// IsValid reports whether the key is well formed. Cross-signing keys carry no
// self-signature requirement; they are anchored by the user directly or by
// the user's master key.
func (c *CrossSigningKey) IsValid() bool {
	if c.userID == "" || c.identifier == "" || len(c.keys) == 0 {
		return false
	}
	_, ok := c.Ed25519Key()
	return ok
}

func (c *CrossSigningKey) Verified() bool        { return c.verifiedAs(c) }
func (c *CrossSigningKey) Signed() bool          { return c.signedAs(c) }
func (c *CrossSigningKey) EncryptToDevice() bool { return c.encryptToDeviceAs(c) }
func (c *CrossSigningKey) SameKey(other Key) bool {
	return c.sameKey(other)
}

// SetVerified sets the direct-verified flag and persists it. Unlike device
// keys, mutating an invalid cross-signing key is an error: validity is a
// prerequisite for all anchoring decisions.
func (c *CrossSigningKey) SetVerified(verified bool) error {
	if !c.IsValid() {
		return errors.Wrapf(domain.ErrInvalidKey, "set verified on %s/%s", c.userID, c.identifier)
	}
	c.directVerified = verified
	if verified {
		c.requestCoSign()
	}
	return errors.Wrap(
		c.dir.store.SetCrossSigningVerified(c.userID, c.identifier, verified),
		"persist cross-signing verification",
	)
}

// SetBlocked sets the block flag and persists it. Errors on invalid keys.
func (c *CrossSigningKey) SetBlocked(blocked bool) error {
	if !c.IsValid() {
		return errors.Wrapf(domain.ErrInvalidKey, "set blocked on %s/%s", c.userID, c.identifier)
	}
	c.blockedFlag = blocked
	return errors.Wrap(
		c.dir.store.SetCrossSigningBlocked(c.userID, c.identifier, blocked),
		"persist cross-signing block",
	)
}

// Record returns the persisted form of this cross-signing key.
func (c *CrossSigningKey) Record() domain.CrossSigningKeyRecord {
	return domain.CrossSigningKeyRecord{
		UserID:    c.userID,
		PublicKey: c.identifier,
		Content:   c.content,
		Verified:  c.directVerified,
		Blocked:   c.blockedFlag,
	}
}
