package store

import (
	"encoding/json"
	"strconv"

	"github.com/boltdb/bolt"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"keytrust/internal/domain"
	"keytrust/pkg/logger"
)

const schemaVersion = 1

// bundleCacheSize bounds the decoded per-user cache. Bundles are re-read on
// every directory load, so this stays small.
const bundleCacheSize = 128

var (
	bucketUsers        = []byte("users")
	bucketDevices      = []byte("devices")
	bucketCrossSigning = []byte("cross_signing")
	bucketInfo         = []byte("info")
	keySchemaVersion   = []byte("schema-version")
)

// cachedUser holds one user's decoded key sets.
type cachedUser struct {
	devices []domain.DeviceKeyRecord
	cross   []domain.CrossSigningKeyRecord
}

// BoltStore persists trust records in a bolt database.
type BoltStore struct {
	db    *bolt.DB
	cache *lru.Cache
	log   logger.Logger
}

// Open opens (and if needed initializes) the database at path.
func Open(path string, log logger.Logger) (*BoltStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open trust database")
	}
	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	cache, err := lru.New(bundleCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("trust database opened", "path", path)
	return &BoltStore{db: db, cache: cache, log: log}, nil
}

func initialize(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketDevices, bucketCrossSigning, bucketInfo} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		info := tx.Bucket(bucketInfo)
		if v := info.Get(keySchemaVersion); v != nil {
			got, err := strconv.Atoi(string(v))
			if err != nil || got != schemaVersion {
				return errors.Errorf("unsupported schema version %q", v)
			}
			return nil
		}
		return info.Put(keySchemaVersion, []byte(strconv.Itoa(schemaVersion)))
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }

// ---------- Users ----------

func (s *BoltStore) SaveUser(rec domain.UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Put([]byte(rec.UserID), raw)
	})
}

func (s *BoltStore) User(user domain.UserID) (domain.UserRecord, bool, error) {
	var rec domain.UserRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketUsers).Get([]byte(user))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	return rec, found, err
}

func (s *BoltStore) Users() ([]domain.UserRecord, error) {
	var out []domain.UserRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, raw []byte) error {
			var rec domain.UserRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// ---------- Device keys ----------

func (s *BoltStore) SaveDeviceKey(rec domain.DeviceKeyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.cache.Remove(rec.UserID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketDevices).CreateBucketIfNotExists([]byte(rec.UserID))
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.DeviceID), raw)
	})
}

func (s *BoltStore) DeviceKeys(user domain.UserID) ([]domain.DeviceKeyRecord, error) {
	cu, err := s.userKeys(user)
	if err != nil {
		return nil, err
	}
	return cu.devices, nil
}

// ---------- Cross-signing keys ----------

func (s *BoltStore) SaveCrossSigningKey(rec domain.CrossSigningKeyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.cache.Remove(rec.UserID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketCrossSigning).CreateBucketIfNotExists([]byte(rec.UserID))
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.PublicKey), raw)
	})
}

func (s *BoltStore) CrossSigningKeys(user domain.UserID) ([]domain.CrossSigningKeyRecord, error) {
	cu, err := s.userKeys(user)
	if err != nil {
		return nil, err
	}
	return cu.cross, nil
}

// userKeys reads both key sets of a user, serving from the LRU when possible.
func (s *BoltStore) userKeys(user domain.UserID) (cachedUser, error) {
	if v, ok := s.cache.Get(user); ok {
		return v.(cachedUser), nil
	}
	var cu cachedUser
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketDevices).Bucket([]byte(user)); b != nil {
			if err := b.ForEach(func(_, raw []byte) error {
				var rec domain.DeviceKeyRecord
				if err := json.Unmarshal(raw, &rec); err != nil {
					return err
				}
				cu.devices = append(cu.devices, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketCrossSigning).Bucket([]byte(user)); b != nil {
			if err := b.ForEach(func(_, raw []byte) error {
				var rec domain.CrossSigningKeyRecord
				if err := json.Unmarshal(raw, &rec); err != nil {
					return err
				}
				cu.cross = append(cu.cross, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cachedUser{}, errors.Wrapf(err, "read keys of %s", user)
	}
	s.cache.Add(user, cu)
	return cu, nil
}

// ---------- Trust flag hooks ----------

func (s *BoltStore) SetDeviceVerified(user domain.UserID, device domain.DeviceID, verified bool) error {
	return s.updateDevice(user, device, func(rec *domain.DeviceKeyRecord) {
		rec.Verified = verified
	})
}

func (s *BoltStore) SetDeviceBlocked(user domain.UserID, device domain.DeviceID, blocked bool) error {
	return s.updateDevice(user, device, func(rec *domain.DeviceKeyRecord) {
		rec.Blocked = blocked
	})
}

func (s *BoltStore) SetCrossSigningVerified(user domain.UserID, publicKey string, verified bool) error {
	return s.updateCrossSigning(user, publicKey, func(rec *domain.CrossSigningKeyRecord) {
		rec.Verified = verified
	})
}

func (s *BoltStore) SetCrossSigningBlocked(user domain.UserID, publicKey string, blocked bool) error {
	return s.updateCrossSigning(user, publicKey, func(rec *domain.CrossSigningKeyRecord) {
		rec.Blocked = blocked
	})
}

func (s *BoltStore) updateDevice(user domain.UserID, device domain.DeviceID, mutate func(*domain.DeviceKeyRecord)) error {
	s.cache.Remove(user)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices).Bucket([]byte(user))
		if b == nil {
			return errors.Wrapf(domain.ErrUnknownUser, "%s", user)
		}
		raw := b.Get([]byte(device))
		if raw == nil {
			return errors.Errorf("unknown device %s/%s", user, device)
		}
		var rec domain.DeviceKeyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		mutate(&rec)
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(device), out)
	})
}

func (s *BoltStore) updateCrossSigning(user domain.UserID, publicKey string, mutate func(*domain.CrossSigningKeyRecord)) error {
	s.cache.Remove(user)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCrossSigning).Bucket([]byte(user))
		if b == nil {
			return errors.Wrapf(domain.ErrUnknownUser, "%s", user)
		}
		raw := b.Get([]byte(publicKey))
		if raw == nil {
			return errors.Errorf("unknown cross-signing key %s/%s", user, publicKey)
		}
		var rec domain.CrossSigningKeyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		mutate(&rec)
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(publicKey), out)
	})
}

// Compile-time assertion that BoltStore implements domain.TrustStore.
var _ domain.TrustStore = (*BoltStore)(nil)
