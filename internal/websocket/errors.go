package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client event queue is full")
	ErrInvalidEvent    = errors.New("invalid event payload")
	ErrNotJoined       = errors.New("connection has not joined a room")
)
