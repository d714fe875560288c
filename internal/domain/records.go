package domain

import "encoding/json"

// DeviceKeyRecord is the persisted form of one device key. Content holds the
// upstream JSON exactly as received, including signatures and unsigned.
type DeviceKeyRecord struct {
	UserID     UserID          `json:"user_id"`
	DeviceID   DeviceID        `json:"device_id"`
	Content    json.RawMessage `json:"content"`
	Verified   bool            `json:"verified"`
	Blocked    bool            `json:"blocked"`
	LastActive int64           `json:"last_active"`
}

// CrossSigningKeyRecord is the persisted form of one cross-signing key.
type CrossSigningKeyRecord struct {
	UserID    UserID          `json:"user_id"`
	PublicKey string          `json:"public_key"`
	Content   json.RawMessage `json:"content"`
	Verified  bool            `json:"verified"`
	Blocked   bool            `json:"blocked"`
}

// UserRecord is the persisted per-user row.
type UserRecord struct {
	UserID   UserID `json:"user_id"`
	Outdated bool   `json:"outdated"`
}
