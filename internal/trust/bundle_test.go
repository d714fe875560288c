package trust

import (
	"testing"

	"keytrust/internal/domain"
)

func TestRollupWithoutMasterKey(t *testing.T) {
	d, _ := newTestDirectory(t, me)
	putDevice(t, d, bob, "DEV", deviceContent(t, bob, "DEV", newIdentity(t), true), true, false)

	bundle, _ := d.Bundle(bob)
	if got := bundle.Verified(); got != domain.StateUnknown {
		t.Fatalf("rollup without master key = %v, want %v", got, domain.StateUnknown)
	}
}

func TestRollupVerifiedMasterWithDeviceGap(t *testing.T) {
	d, _ := newTestDirectory(t, me)
	self := installSelfIdentity(t, d)
	installRemoteUser(t, d, self, bob, "D1")

	// A second, unsigned-by-identity device leaves a gap under a verified
	// master key.
	putDevice(t, d, bob, "D2", deviceContent(t, bob, "D2", newIdentity(t), true), false, false)

	bundle, _ := d.Bundle(bob)
	if !bundle.MasterKey().Verified() {
		t.Fatal("setup: master key should verify")
	}
	if got := bundle.Verified(); got != domain.StateUnknownDevice {
		t.Fatalf("rollup = %v, want %v", got, domain.StateUnknownDevice)
	}
}

func TestRollupVerifiedMasterAllDevices(t *testing.T) {
	d, _ := newTestDirectory(t, me)
	self := installSelfIdentity(t, d)
	installRemoteUser(t, d, self, bob, "D1", "D2")

	bundle, _ := d.Bundle(bob)
	if got := bundle.Verified(); got != domain.StateVerified {
		t.Fatalf("rollup = %v, want %v", got, domain.StateVerified)
	}
}

func TestRollupUnverifiedMasterCollapsesGapsToUnknown(t *testing.T) {
	d, _ := newTestDirectory(t, me)

	// Bob carries a master key we never anchored, one directly verified
	// device and one unverified device.
	master := newIdentity(t)
	putCrossSigning(t, d, bob, master, crossSigningContent(t, bob, master, domain.UsageMaster), false, false)
	putDevice(t, d, bob, "D1", deviceContent(t, bob, "D1", newIdentity(t), true), true, false)
	putDevice(t, d, bob, "D2", deviceContent(t, bob, "D2", newIdentity(t), true), false, false)

	bundle, _ := d.Bundle(bob)
	if got := bundle.Verified(); got != domain.StateUnknown {
		t.Fatalf("rollup = %v, want %v", got, domain.StateUnknown)
	}
}

func TestRollupUnverifiedMasterAllDevicesVerified(t *testing.T) {
	d, _ := newTestDirectory(t, me)

	master := newIdentity(t)
	putCrossSigning(t, d, bob, master, crossSigningContent(t, bob, master, domain.UsageMaster), false, false)
	putDevice(t, d, bob, "D1", deviceContent(t, bob, "D1", newIdentity(t), true), true, false)

	bundle, _ := d.Bundle(bob)
	if got := bundle.Verified(); got != domain.StateVerified {
		t.Fatalf("rollup = %v, want %v", got, domain.StateVerified)
	}
}

func TestBundleGetKeyResolvesBothTables(t *testing.T) {
	d, _ := newTestDirectory(t, me)
	id := newIdentity(t)
	device := putDevice(t, d, bob, "DEV", deviceContent(t, bob, "DEV", newIdentity(t), true), false, false)
	cross := putCrossSigning(t, d, bob, id, crossSigningContent(t, bob, id, domain.UsageMaster), false, false)

	bundle, _ := d.Bundle(bob)
	if got := bundle.GetKey("DEV"); got == nil || !got.SameKey(device) {
		t.Fatal("device lookup failed")
	}
	if got := bundle.GetKey(id.b64()); got == nil || !got.SameKey(cross) {
		t.Fatal("cross-signing lookup failed")
	}
	if bundle.GetKey("missing") != nil {
		t.Fatal("unknown id must yield nil")
	}
}

func TestBundleOutdatedOnInvalidChild(t *testing.T) {
	d, _ := newTestDirectory(t, me)

	putDevice(t, d, bob, "OK", deviceContent(t, bob, "OK", newIdentity(t), true), false, false)
	bundle, _ := d.Bundle(bob)
	if bundle.Outdated() {
		t.Fatal("bundle with only valid keys must not be outdated")
	}

	putDevice(t, d, bob, "BAD", deviceContent(t, bob, "BAD", newIdentity(t), false), false, false)
	bundle, _ = d.Bundle(bob)
	if !bundle.Outdated() {
		t.Fatal("invalid child must mark the bundle outdated")
	}
}

func TestCrossSigningKeyViews(t *testing.T) {
	d, _ := newTestDirectory(t, me)
	master := newIdentity(t)
	ssk := newIdentity(t)
	usk := newIdentity(t)

	putCrossSigning(t, d, me, master, crossSigningContent(t, me, master, domain.UsageMaster), false, false)
	putCrossSigning(t, d, me, ssk, crossSigningContent(t, me, ssk, domain.UsageSelfSigning), false, false)
	putCrossSigning(t, d, me, usk, crossSigningContent(t, me, usk, domain.UsageUserSigning), false, false)

	bundle, _ := d.Bundle(me)
	if bundle.MasterKey() == nil || bundle.MasterKey().PublicKey() != master.b64() {
		t.Fatal("master view mismatched")
	}
	if bundle.SelfSigningKey() == nil || bundle.SelfSigningKey().PublicKey() != ssk.b64() {
		t.Fatal("self-signing view mismatched")
	}
	if bundle.UserSigningKey() == nil || bundle.UserSigningKey().PublicKey() != usk.b64() {
		t.Fatal("user-signing view mismatched")
	}
}

func TestDirectoryPutUserPersistsAndLoads(t *testing.T) {
	d, st := newTestDirectory(t, me)
	id := newIdentity(t)

	err := d.PutUser(bob,
		[]domain.DeviceKeyRecord{{UserID: bob, DeviceID: "DEV", Content: deviceContent(t, bob, "DEV", id, true)}},
		nil,
	)
	if err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	if rec, ok := st.users[bob]; !ok || rec.Outdated {
		t.Fatalf("user record not persisted cleanly: %+v", rec)
	}
	if _, ok := st.devices[bob]["DEV"]; !ok {
		t.Fatal("device record not persisted")
	}
	if key := d.GetKey(bob, "DEV"); key == nil {
		t.Fatal("key not resolvable after PutUser")
	}
}
