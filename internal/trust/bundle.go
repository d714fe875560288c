package trust

import (
	"keytrust/internal/domain"
)

// UserKeyBundle holds all known keys of a single user.
type UserKeyBundle struct {
	userID   domain.UserID
	outdated bool

	devices     map[domain.DeviceID]*DeviceKey
	deviceOrder []domain.DeviceID

	crossSigning map[string]*CrossSigningKey
	crossOrder   []string
}

// newUserKeyBundle builds a bundle from persisted records. Records that fail
// to parse or carry no identifier are dropped; any dropped or invalid child
// marks the bundle outdated.
func newUserKeyBundle(
	dir *Directory,
	rec domain.UserRecord,
	deviceRecs []domain.DeviceKeyRecord,
	crossRecs []domain.CrossSigningKeyRecord,
) *UserKeyBundle {
	b := &UserKeyBundle{
		userID:       rec.UserID,
		outdated:     rec.Outdated,
		devices:      make(map[domain.DeviceID]*DeviceKey, len(deviceRecs)),
		crossSigning: make(map[string]*CrossSigningKey, len(crossRecs)),
	}
	for _, dr := range deviceRecs {
		dk, err := newDeviceKey(dir, dr)
		if err != nil || dk.deviceID == "" {
			dir.log.Warn("dropping malformed device key", "user", rec.UserID, "device", dr.DeviceID, "err", err)
			b.outdated = true
			continue
		}
		if !dk.IsValid() {
			b.outdated = true
		}
		if _, seen := b.devices[dk.deviceID]; !seen {
			b.deviceOrder = append(b.deviceOrder, dk.deviceID)
		}
		b.devices[dk.deviceID] = dk
	}
	for _, cr := range crossRecs {
		ck, err := newCrossSigningKey(dir, cr)
		if err != nil || ck.identifier == "" {
			dir.log.Warn("dropping malformed cross-signing key", "user", rec.UserID, "key", cr.PublicKey, "err", err)
			b.outdated = true
			continue
		}
		if !ck.IsValid() {
			b.outdated = true
		}
		if _, seen := b.crossSigning[ck.identifier]; !seen {
			b.crossOrder = append(b.crossOrder, ck.identifier)
		}
		b.crossSigning[ck.identifier] = ck
	}
	return b
}

func (b *UserKeyBundle) UserID() domain.UserID { return b.userID }
func (b *UserKeyBundle) Outdated() bool        { return b.outdated }

// Devices returns the user's device keys in load order.
func (b *UserKeyBundle) Devices() []*DeviceKey {
	out := make([]*DeviceKey, 0, len(b.deviceOrder))
	for _, id := range b.deviceOrder {
		out = append(out, b.devices[id])
	}
	return out
}

// CrossSigningKeys returns the user's cross-signing keys in load order.
func (b *UserKeyBundle) CrossSigningKeys() []*CrossSigningKey {
	out := make([]*CrossSigningKey, 0, len(b.crossOrder))
	for _, id := range b.crossOrder {
		out = append(out, b.crossSigning[id])
	}
	return out
}

// Device returns the device key with the given id.
func (b *UserKeyBundle) Device(id domain.DeviceID) (*DeviceKey, bool) {
	d, ok := b.devices[id]
	return d, ok
}

// GetKey returns the key whose identifier equals id, trying the device table
// first, then the cross-signing table. Nil when absent.
func (b *UserKeyBundle) GetKey(id string) Key {
	if d, ok := b.devices[domain.DeviceID(id)]; ok {
		return d
	}
	if c, ok := b.crossSigning[id]; ok {
		return c
	}
	return nil
}

// CrossSigningKeyByUsage returns the first cross-signing key carrying the
// given usage label.
func (b *UserKeyBundle) CrossSigningKeyByUsage(label string) *CrossSigningKey {
	for _, id := range b.crossOrder {
		if b.crossSigning[id].HasUsage(label) {
			return b.crossSigning[id]
		}
	}
	return nil
}

func (b *UserKeyBundle) MasterKey() *CrossSigningKey {
	return b.CrossSigningKeyByUsage(domain.UsageMaster)
}

func (b *UserKeyBundle) SelfSigningKey() *CrossSigningKey {
	return b.CrossSigningKeyByUsage(domain.UsageSelfSigning)
}

func (b *UserKeyBundle) UserSigningKey() *CrossSigningKey {
	return b.CrossSigningKeyByUsage(domain.UsageUserSigning)
}

// Verified rolls the user's trust state up into a three-valued verdict.
//
// An unverified device only surfaces as StateUnknownDevice once the user's
// master key is itself verified; without that identity anchor, device-level
// gaps collapse into StateUnknown.
func (b *UserKeyBundle) Verified() domain.VerifiedState {
	master := b.MasterKey()
	if master == nil {
		return domain.StateUnknown
	}
	allVerified := true
	for _, id := range b.deviceOrder {
		if !b.devices[id].Verified() {
			allVerified = false
			break
		}
	}
	if master.Verified() {
		if !allVerified {
			return domain.StateUnknownDevice
		}
		return domain.StateVerified
	}
	if !allVerified {
		return domain.StateUnknown
	}
	return domain.StateVerified
}
