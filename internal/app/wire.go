package app

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"keytrust/internal/domain"
	"keytrust/internal/store"
	"keytrust/internal/trust"
	"keytrust/pkg/logger"
)

// Wire bundles the store and directory for the CLI.
type Wire struct {
	Store     *store.BoltStore
	Directory *trust.Directory
	Log       logger.Logger
}

// NewWire constructs the dependency graph from cfg and loads the directory.
// The optional signer hooks up the local cross-signing component.
func NewWire(cfg Config, signer domain.CrossSigner) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, errors.Wrap(err, "create home directory")
	}
	log := logger.New(cfg.LogLevel)

	st, err := store.Open(filepath.Join(cfg.Home, cfg.Database), log)
	if err != nil {
		return nil, err
	}

	dir := trust.New(trust.Config{
		SelfUserID:        cfg.SelfUserID,
		Store:             st,
		Signer:            signer,
		Logger:            log,
		EncryptionEnabled: cfg.Encryption.Enabled,
		StrictEncryption:  cfg.Encryption.Strict,
	})
	if err := dir.Load(); err != nil {
		st.Close()
		return nil, err
	}

	return &Wire{Store: st, Directory: dir, Log: log}, nil
}

// Close tears the wire down in reverse construction order.
func (w *Wire) Close() error {
	w.Directory.Close()
	return w.Store.Close()
}
