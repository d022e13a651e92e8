// Package storage defines the scene journal: an ordered record of every
// message broadcast to viewers, used to bring late viewers up to date.
package storage

import (
	"errors"

	"github.com/threepy/vizserver/pkg/streaming"
)

// ErrReplayUnsupported is returned by backends that only forward messages.
var ErrReplayUnsupported = errors.New("replay not supported by backend")

// Backend is the interface all journal implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Append records env after the last recorded message.
	Append(env streaming.Envelope) error
	// Replay calls fn for each recorded message in append order, stopping at
	// the first error.
	Replay(fn func(streaming.Envelope) error) error
	// Reset discards every recorded message.
	Reset() error
}
