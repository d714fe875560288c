package verification

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"keytrust/internal/domain"
	"keytrust/pkg/logger"
)

// BroadcastDeviceID addresses every device of a user.
const BroadcastDeviceID = domain.DeviceID("*")

// RoomFinder obtains a direct room with another user, creating one if needed.
type RoomFinder interface {
	DirectRoom(ctx context.Context, user domain.UserID) (domain.RoomID, error)
}

// Session is an interactive key-verification session.
type Session interface {
	TransactionID() string
	Start(ctx context.Context) error
}

// SessionFactory creates sessions. NewRoomSession targets one user through a
// room; NewBroadcastSession targets the local user's other devices.
type SessionFactory interface {
	NewRoomSession(transactionID string, room domain.RoomID, user domain.UserID) Session
	NewBroadcastSession(transactionID string, user domain.UserID, device domain.DeviceID) Session
}

// Manager tracks running broadcast sessions so incoming to-device replies can
// be routed to them.
type Manager interface {
	Register(s Session)
}

// Service starts verification sessions.
type Service struct {
	self     domain.UserID
	rooms    RoomFinder
	sessions SessionFactory
	manager  Manager
	log      logger.Logger
}

// New constructs a verification service.
func New(self domain.UserID, rooms RoomFinder, sessions SessionFactory, manager Manager, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{self: self, rooms: rooms, sessions: sessions, manager: manager, log: log}
}

// StartVerification begins verifying the given user.
//
// For another user a direct room is obtained and a room session is started in
// it. For the local user a broadcast session addressed to device "*" is
// started and registered with the manager.
func (s *Service) StartVerification(ctx context.Context, user domain.UserID) (Session, error) {
	txn := uuid.NewString()

	if user != s.self {
		room, err := s.rooms.DirectRoom(ctx, user)
		if err != nil {
			return nil, errors.Wrapf(err, "direct room with %s", user)
		}
		if room == "" {
			return nil, errors.Wrapf(domain.ErrRoomCreation, "with %s", user)
		}
		sess := s.sessions.NewRoomSession(txn, room, user)
		if err := sess.Start(ctx); err != nil {
			return nil, errors.Wrap(err, "start room verification")
		}
		s.log.Info("verification started", "user", user, "room", room, "txn", txn)
		return sess, nil
	}

	sess := s.sessions.NewBroadcastSession(txn, s.self, BroadcastDeviceID)
	if err := sess.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start broadcast verification")
	}
	s.manager.Register(sess)
	s.log.Info("self-verification started", "txn", txn)
	return sess, nil
}
