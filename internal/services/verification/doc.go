// Package verification starts interactive key-verification sessions.
//
// The session protocol itself (SAS, QR) is a separate subsystem reached
// through the SessionFactory; this service only decides how a session begins:
// through a direct room when verifying another user, or as a broadcast to all
// own devices when verifying oneself.
package verification
