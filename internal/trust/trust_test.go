package trust

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"keytrust/internal/canonical"
	"keytrust/internal/crypto"
	"keytrust/internal/domain"
)

// ---------- store and signer fakes ----------

type fakeStore struct {
	mu      sync.Mutex
	users   map[domain.UserID]domain.UserRecord
	devices map[domain.UserID]map[domain.DeviceID]domain.DeviceKeyRecord
	cross   map[domain.UserID]map[string]domain.CrossSigningKeyRecord
	hooks   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[domain.UserID]domain.UserRecord),
		devices: make(map[domain.UserID]map[domain.DeviceID]domain.DeviceKeyRecord),
		cross:   make(map[domain.UserID]map[string]domain.CrossSigningKeyRecord),
	}
}

func (s *fakeStore) hook(format string, args ...any) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *fakeStore) SaveUser(rec domain.UserRecord) error {
	s.users[rec.UserID] = rec
	return nil
}

func (s *fakeStore) User(user domain.UserID) (domain.UserRecord, bool, error) {
	rec, ok := s.users[user]
	return rec, ok, nil
}

func (s *fakeStore) Users() ([]domain.UserRecord, error) {
	out := make([]domain.UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) SaveDeviceKey(rec domain.DeviceKeyRecord) error {
	if s.devices[rec.UserID] == nil {
		s.devices[rec.UserID] = make(map[domain.DeviceID]domain.DeviceKeyRecord)
	}
	s.devices[rec.UserID][rec.DeviceID] = rec
	return nil
}

func (s *fakeStore) DeviceKeys(user domain.UserID) ([]domain.DeviceKeyRecord, error) {
	out := make([]domain.DeviceKeyRecord, 0, len(s.devices[user]))
	for _, rec := range s.devices[user] {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) SaveCrossSigningKey(rec domain.CrossSigningKeyRecord) error {
	if s.cross[rec.UserID] == nil {
		s.cross[rec.UserID] = make(map[string]domain.CrossSigningKeyRecord)
	}
	s.cross[rec.UserID][rec.PublicKey] = rec
	return nil
}

func (s *fakeStore) CrossSigningKeys(user domain.UserID) ([]domain.CrossSigningKeyRecord, error) {
	out := make([]domain.CrossSigningKeyRecord, 0, len(s.cross[user]))
	for _, rec := range s.cross[user] {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) SetDeviceVerified(user domain.UserID, device domain.DeviceID, verified bool) error {
	s.hook("device-verified:%s/%s=%v", user, device, verified)
	rec := s.devices[user][device]
	rec.Verified = verified
	s.devices[user][device] = rec
	return nil
}

func (s *fakeStore) SetDeviceBlocked(user domain.UserID, device domain.DeviceID, blocked bool) error {
	s.hook("device-blocked:%s/%s=%v", user, device, blocked)
	rec := s.devices[user][device]
	rec.Blocked = blocked
	s.devices[user][device] = rec
	return nil
}

func (s *fakeStore) SetCrossSigningVerified(user domain.UserID, publicKey string, verified bool) error {
	s.hook("cross-verified:%s/%s=%v", user, publicKey, verified)
	rec := s.cross[user][publicKey]
	rec.Verified = verified
	s.cross[user][publicKey] = rec
	return nil
}

func (s *fakeStore) SetCrossSigningBlocked(user domain.UserID, publicKey string, blocked bool) error {
	s.hook("cross-blocked:%s/%s=%v", user, publicKey, blocked)
	rec := s.cross[user][publicKey]
	rec.Blocked = blocked
	s.cross[user][publicKey] = rec
	return nil
}

type fakeSigner struct {
	mu       sync.Mutex
	signable bool
	signed   []string
}

func (f *fakeSigner) Signable(user domain.UserID, identifier string) bool { return f.signable }

func (f *fakeSigner) Sign(ctx context.Context, user domain.UserID, identifier string) error {
	f.mu.Lock()
	f.signed = append(f.signed, string(user)+";"+identifier)
	f.mu.Unlock()
	return nil
}

// ---------- verifier instrumentation ----------

type countingVerifier struct {
	inner crypto.Verifier
	n     *int
}

func (c countingVerifier) Verify(pub, msg, sig []byte) bool {
	*c.n++
	return c.inner.Verify(pub, msg, sig)
}

func (c countingVerifier) Release() { c.inner.Release() }

func countingFactory(n *int) crypto.VerifierFactory {
	return func() (crypto.Verifier, error) {
		v, err := crypto.NewVerifier()
		if err != nil {
			return nil, err
		}
		return countingVerifier{inner: v, n: n}, nil
	}
}

func unavailableFactory() (crypto.Verifier, error) {
	return nil, crypto.ErrUnavailable
}

// ---------- key fixtures ----------

type identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newIdentity(t *testing.T) identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	return identity{priv: priv, pub: pub}
}

func (id identity) b64() string {
	return base64.RawStdEncoding.EncodeToString(id.pub)
}

func b64(b []byte) string { return base64.RawStdEncoding.EncodeToString(b) }

// deviceContent builds the upstream JSON of a device key, self-signed when
// selfSign is true.
func deviceContent(t *testing.T, user domain.UserID, deviceID string, id identity, selfSign bool) json.RawMessage {
	t.Helper()
	content := map[string]any{
		"user_id":    string(user),
		"device_id":  deviceID,
		"algorithms": []string{"m.olm.v1.curve25519-aes-sha2", "m.megolm.v1.aes-sha2"},
		"keys": map[string]string{
			domain.FullKeyID(domain.AlgorithmEd25519, deviceID):    id.b64(),
			domain.FullKeyID(domain.AlgorithmCurve25519, deviceID): b64(id.pub), // placeholder companion
		},
	}
	raw := marshal(t, content)
	if selfSign {
		raw = signContent(t, raw, user, domain.FullKeyID(domain.AlgorithmEd25519, deviceID), id.priv)
	}
	return raw
}

// crossSigningContent builds the upstream JSON of a cross-signing key.
func crossSigningContent(t *testing.T, user domain.UserID, id identity, usage ...string) json.RawMessage {
	t.Helper()
	content := map[string]any{
		"user_id": string(user),
		"usage":   usage,
		"keys": map[string]string{
			domain.FullKeyID(domain.AlgorithmEd25519, id.b64()): id.b64(),
		},
	}
	return marshal(t, content)
}

// signContent adds signatures[signerUser][signerKeyID] over the canonical
// payload of raw and returns the updated JSON.
func signContent(t *testing.T, raw json.RawMessage, signerUser domain.UserID, signerKeyID string, priv ed25519.PrivateKey) json.RawMessage {
	t.Helper()
	payload, err := canonical.SigningPayload(raw)
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	sig := ed25519.Sign(priv, payload)

	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	sigs, _ := content["signatures"].(map[string]any)
	if sigs == nil {
		sigs = make(map[string]any)
	}
	perKey, _ := sigs[string(signerUser)].(map[string]any)
	if perKey == nil {
		perKey = make(map[string]any)
	}
	perKey[signerKeyID] = b64(sig)
	sigs[string(signerUser)] = perKey
	content["signatures"] = sigs
	return marshal(t, content)
}

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// ---------- directory fixture ----------

func newTestDirectory(t *testing.T, self domain.UserID) (*Directory, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	d := New(Config{
		SelfUserID:        self,
		Store:             st,
		EncryptionEnabled: true,
	})
	t.Cleanup(d.Close)
	return d, st
}

func putDevice(t *testing.T, d *Directory, user domain.UserID, deviceID string, content json.RawMessage, verified, blocked bool) *DeviceKey {
	t.Helper()
	st := d.store.(*fakeStore)
	if err := st.SaveDeviceKey(domain.DeviceKeyRecord{
		UserID: user, DeviceID: domain.DeviceID(deviceID), Content: content,
		Verified: verified, Blocked: blocked,
	}); err != nil {
		t.Fatalf("SaveDeviceKey: %v", err)
	}
	if err := st.SaveUser(domain.UserRecord{UserID: user}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := d.LoadUser(user); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	bundle, _ := d.Bundle(user)
	dk, ok := bundle.Device(domain.DeviceID(deviceID))
	if !ok {
		t.Fatalf("device %s/%s not loaded", user, deviceID)
	}
	return dk
}

func putCrossSigning(t *testing.T, d *Directory, user domain.UserID, id identity, content json.RawMessage, verified, blocked bool) *CrossSigningKey {
	t.Helper()
	st := d.store.(*fakeStore)
	if err := st.SaveCrossSigningKey(domain.CrossSigningKeyRecord{
		UserID: user, PublicKey: id.b64(), Content: content,
		Verified: verified, Blocked: blocked,
	}); err != nil {
		t.Fatalf("SaveCrossSigningKey: %v", err)
	}
	if err := st.SaveUser(domain.UserRecord{UserID: user}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := d.LoadUser(user); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	bundle, _ := d.Bundle(user)
	ck, ok := bundle.crossSigning[id.b64()]
	if !ok {
		t.Fatalf("cross-signing key %s/%s not loaded", user, id.b64())
	}
	return ck
}
