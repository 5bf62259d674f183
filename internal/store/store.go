package store

import "github.com/velimir/roomcast/internal/models"

// RoomStore holds, per room, the set of sub-channel names and the ordered
// log of delivered messages. Rooms and sub-channels are created lazily on
// first reference; absence is never an error.
type RoomStore interface {
	// EnsureRoom guarantees a room record exists with at least the
	// default sub-channel. Idempotent.
	EnsureRoom(roomID string) error

	// AppendDelivered appends a final (delivered or immediate) message to
	// the room's log. Prior entries are never mutated.
	AppendDelivered(roomID, subChannel string, msg *models.Message) error

	// History returns the delivered log for one sub-channel, ordered by
	// effective time ascending. Pending placeholders never appear here.
	History(roomID, subChannel string) ([]models.Message, error)

	// ListSubChannels returns the known sub-channel names, default first.
	ListSubChannels(roomID string) ([]string, error)

	// CreateSubChannel registers a name and reports whether it was new.
	// A repeat registration is a no-op and returns false, which callers
	// use to suppress duplicate creation broadcasts.
	CreateSubChannel(roomID, name string) (bool, error)
}
