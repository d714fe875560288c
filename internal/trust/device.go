package trust

import (
	"encoding/json"

	"github.com/pkg/errors"

	"keytrust/internal/crypto"
	"keytrust/internal/domain"
)

// DeviceKey is one device of a user, carrying an Ed25519 signing key and a
// Curve25519 companion for session establishment.
type DeviceKey struct {
	signableKey
	deviceID   domain.DeviceID
	algorithms []string
	lastActive int64

	selfSigned *bool
}

func newDeviceKey(dir *Directory, rec domain.DeviceKeyRecord) (*DeviceKey, error) {
	var content keyContent
	if err := json.Unmarshal(rec.Content, &content); err != nil {
		return nil, errors.Wrap(err, "decode device key content")
	}
	deviceID := rec.DeviceID
	if deviceID == "" {
		deviceID = content.DeviceID
	}
	return &DeviceKey{
		signableKey: signableKey{
			dir:            dir,
			userID:         rec.UserID,
			identifier:     string(deviceID),
			keys:           content.Keys,
			signatures:     content.Signatures,
			unsigned:       content.Unsigned,
			content:        rec.Content,
			directVerified: rec.Verified,
			blockedFlag:    rec.Blocked,
		},
		deviceID:   deviceID,
		algorithms: content.Algorithms,
		lastActive: rec.LastActive,
	}, nil
}

func (d *DeviceKey) DeviceID() domain.DeviceID { return d.deviceID }
func (d *DeviceKey) Algorithms() []string      { return d.algorithms }
func (d *DeviceKey) LastActive() int64         { return d.lastActive }

// DisplayName returns the device display name from unsigned metadata.
func (d *DeviceKey) DisplayName() string {
	if name, ok := d.unsigned["device_display_name"].(string); ok {
		return name
	}
	return ""
}

// Curve25519Key returns the device's Diffie-Hellman companion key.
func (d *DeviceKey) Curve25519Key() (string, bool) {
	if d.identifier == "" {
		return "", false
	}
	k, ok := d.keys[domain.FullKeyID(domain.AlgorithmCurve25519, d.identifier)]
	return k, ok && k != ""
}

// SelfSigned reports whether the device carries a valid signature by itself
// over its canonical form. The result is computed once and memoized.
//
// An unavailable verifier counts as valid: new devices must remain loadable
// before the primitive is up, and full trust still requires chain validation.
func (d *DeviceKey) SelfSigned() bool {
	if d.selfSigned != nil {
		return *d.selfSigned
	}
	ok := d.evalSelfSignature()
	d.selfSigned = &ok
	return ok
}

func (d *DeviceKey) evalSelfSignature() bool {
	sig, ok := d.signatures[d.userID][domain.FullKeyID(domain.AlgorithmEd25519, d.identifier)]
	if !ok {
		return false
	}
	pub, ok := d.Ed25519Key()
	if !ok {
		return false
	}
	content, err := d.SigningContent()
	if err != nil {
		return false
	}
	pubBytes, err := decodeBase64(pub)
	if err != nil {
		return false
	}
	sigBytes, err := decodeBase64(sig)
	if err != nil {
		return false
	}
	switch crypto.VerifyDetached(d.dir.verifier, pubBytes, content, sigBytes) {
	case crypto.ResultValid, crypto.ResultUnavailable:
		return true
	default:
		return false
	}
}

// Blocked is the effective block state: the local flag, or a failed
// self-signature, which makes the device permanently untrusted.
func (d *DeviceKey) Blocked() bool {
	return d.blockedFlag || !d.SelfSigned()
}

// IsValid reports whether the device key is well formed and self-signed.
func (d *DeviceKey) IsValid() bool {
	if d.identifier == "" || len(d.keys) == 0 {
		return false
	}
	if _, ok := d.Ed25519Key(); !ok {
		return false
	}
	if _, ok := d.Curve25519Key(); !ok {
		return false
	}
	return d.SelfSigned()
}

func (d *DeviceKey) Verified() bool        { return d.verifiedAs(d) }
func (d *DeviceKey) Signed() bool          { return d.signedAs(d) }
func (d *DeviceKey) EncryptToDevice() bool { return d.encryptToDeviceAs(d) }
func (d *DeviceKey) SameKey(other Key) bool {
	return d.sameKey(other)
}

// SetVerified sets the direct-verified flag and persists it. Invalid devices
// are a silent no-op. When newly verified, an asynchronous co-signing is
// requested; its outcome never rolls the flag back.
func (d *DeviceKey) SetVerified(verified bool) error {
	if !d.IsValid() {
		return nil
	}
	d.directVerified = verified
	if verified {
		d.requestCoSign()
	}
	return errors.Wrap(
		d.dir.store.SetDeviceVerified(d.userID, d.deviceID, verified),
		"persist device verification",
	)
}

// SetBlocked sets the block flag and persists it. Invalid devices are a
// silent no-op.
func (d *DeviceKey) SetBlocked(blocked bool) error {
	if !d.IsValid() {
		return nil
	}
	d.blockedFlag = blocked
	return errors.Wrap(
		d.dir.store.SetDeviceBlocked(d.userID, d.deviceID, blocked),
		"persist device block",
	)
}

// Record returns the persisted form of this device key.
func (d *DeviceKey) Record() domain.DeviceKeyRecord {
	return domain.DeviceKeyRecord{
		UserID:     d.userID,
		DeviceID:   d.deviceID,
		Content:    d.content,
		Verified:   d.directVerified,
		Blocked:    d.blockedFlag,
		LastActive: d.lastActive,
	}
}
