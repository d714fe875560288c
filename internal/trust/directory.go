package trust

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"keytrust/internal/crypto"
	"keytrust/internal/domain"
	"keytrust/pkg/logger"
)

// Config wires a Directory.
type Config struct {
	SelfUserID domain.UserID
	Store      domain.TrustStore
	Signer     domain.CrossSigner

	// Verifier acquires the Ed25519 primitive; defaults to crypto.NewVerifier.
	Verifier crypto.VerifierFactory
	Logger   logger.Logger

	// EncryptionEnabled is the precondition for all chain validation.
	EncryptionEnabled bool
	// StrictEncryption requires full verification for EncryptToDevice even
	// when the owning user has no verified master key.
	StrictEncryption bool
}

// Directory is the process-wide view of all known users' key bundles and the
// substrate for signature-chain validation.
type Directory struct {
	mu    sync.RWMutex
	users map[domain.UserID]*UserKeyBundle

	selfUserID domain.UserID
	store      domain.TrustStore
	signer     domain.CrossSigner
	verifier   crypto.VerifierFactory
	log        logger.Logger

	encryptionEnabled bool
	strict            bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an empty directory. Call Load or LoadUser to populate it.
func New(cfg Config) *Directory {
	if cfg.Verifier == nil {
		cfg.Verifier = crypto.NewVerifier
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Directory{
		users:             make(map[domain.UserID]*UserKeyBundle),
		selfUserID:        cfg.SelfUserID,
		store:             cfg.Store,
		signer:            cfg.Signer,
		verifier:          cfg.Verifier,
		log:               cfg.Logger,
		encryptionEnabled: cfg.EncryptionEnabled,
		strict:            cfg.StrictEncryption,
		ctx:               ctx,
		cancel:            cancel,
	}
}

func (d *Directory) SelfUserID() domain.UserID { return d.selfUserID }

func (d *Directory) EncryptionEnabled() bool { return d.encryptionEnabled }

// Load populates the directory with every user known to the store.
func (d *Directory) Load() error {
	users, err := d.store.Users()
	if err != nil {
		return errors.Wrap(err, "list users")
	}
	for _, rec := range users {
		if err := d.loadUserRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// LoadUser (re)builds one user's bundle from the store.
func (d *Directory) LoadUser(user domain.UserID) error {
	rec, ok, err := d.store.User(user)
	if err != nil {
		return errors.Wrap(err, "load user record")
	}
	if !ok {
		return errors.Wrapf(domain.ErrUnknownUser, "%s", user)
	}
	return d.loadUserRecord(rec)
}

func (d *Directory) loadUserRecord(rec domain.UserRecord) error {
	deviceRecs, err := d.store.DeviceKeys(rec.UserID)
	if err != nil {
		return errors.Wrapf(err, "load device keys of %s", rec.UserID)
	}
	crossRecs, err := d.store.CrossSigningKeys(rec.UserID)
	if err != nil {
		return errors.Wrapf(err, "load cross-signing keys of %s", rec.UserID)
	}
	bundle := newUserKeyBundle(d, rec, deviceRecs, crossRecs)

	d.mu.Lock()
	d.users[rec.UserID] = bundle
	d.mu.Unlock()
	return nil
}

// PutUser ingests fresh key material pushed by the server: records are
// persisted, the in-memory bundle is replaced, and the user record tracks
// whether any child failed validity.
func (d *Directory) PutUser(
	user domain.UserID,
	deviceRecs []domain.DeviceKeyRecord,
	crossRecs []domain.CrossSigningKeyRecord,
) error {
	bundle := newUserKeyBundle(d, domain.UserRecord{UserID: user}, deviceRecs, crossRecs)

	if err := d.store.SaveUser(domain.UserRecord{UserID: user, Outdated: bundle.outdated}); err != nil {
		return errors.Wrapf(err, "save user %s", user)
	}
	for _, dk := range bundle.Devices() {
		if err := d.store.SaveDeviceKey(dk.Record()); err != nil {
			return errors.Wrapf(err, "save device key %s/%s", user, dk.DeviceID())
		}
	}
	for _, ck := range bundle.CrossSigningKeys() {
		if err := d.store.SaveCrossSigningKey(ck.Record()); err != nil {
			return errors.Wrapf(err, "save cross-signing key %s/%s", user, ck.PublicKey())
		}
	}

	d.mu.Lock()
	d.users[user] = bundle
	d.mu.Unlock()
	return nil
}

// Bundle returns the key bundle of a user, if known.
func (d *Directory) Bundle(user domain.UserID) (*UserKeyBundle, bool) {
	d.mu.RLock()
	b, ok := d.users[user]
	d.mu.RUnlock()
	return b, ok
}

// GetKey resolves a key by (user id, key id).
func (d *Directory) GetKey(user domain.UserID, id string) Key {
	b, ok := d.Bundle(user)
	if !ok {
		return nil
	}
	return b.GetKey(id)
}

// Users returns the ids of all known users.
func (d *Directory) Users() []domain.UserID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.UserID, 0, len(d.users))
	for id := range d.users {
		out = append(out, id)
	}
	return out
}

func (d *Directory) masterKey(user domain.UserID) *CrossSigningKey {
	b, ok := d.Bundle(user)
	if !ok {
		return nil
	}
	return b.MasterKey()
}

// dispatchSign runs a co-signing request in a goroutine supervised by the
// directory: Close drains all in-flight requests, so a spawned task cannot
// outlive the directory. Errors are logged and swallowed.
func (d *Directory) dispatchSign(user domain.UserID, identifier string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("co-signing panicked", "user", user, "key", identifier, "panic", r)
			}
		}()
		if err := d.signer.Sign(d.ctx, user, identifier); err != nil {
			d.log.Warn("co-signing failed", "user", user, "key", identifier, "err", err)
		}
	}()
}

// Close cancels in-flight co-signing and waits for it to drain.
func (d *Directory) Close() {
	d.cancel()
	d.wg.Wait()
}
