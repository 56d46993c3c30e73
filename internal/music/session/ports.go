package session

import (
	"context"
	"io"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks . Transport

// Stream is a handle to audio data. Reading yields 48kHz stereo s16le PCM.
type Stream interface {
	io.ReadCloser
}

// Transport turns a source URL into a Stream. Network failures may surface
// lazily as read errors.
type Transport interface {
	OpenStream(ctx context.Context, url string) (Stream, error)
}

// Connector opens voice connections. The returned Connection reports
// readiness asynchronously on its event channel.
type Connector interface {
	Connect(ctx context.Context, key ChannelKey) (Connection, error)
}

// Connection is a live or pending voice connection.
type Connection interface {
	Events() <-chan ConnectionEvent
	// NewPlayer returns a player subscribed to this connection for its
	// whole lifetime. Only valid after a ConnectionReady event.
	NewPlayer() Player
	Destroy()
}

// Player renders one stream at a time onto its connection.
type Player interface {
	// Play starts stream, replacing anything currently playing. Events for
	// this stream carry gen.
	Play(stream Stream, gen uint64) error
	Pause() bool
	Unpause() bool
	// Stop ends the current stream. The player reports PlayerIdle for it.
	Stop()
	Events() <-chan PlayerEvent
}

type ConnectionEventType int

const (
	ConnectionReady ConnectionEventType = iota
	ConnectionDisconnected
)

type ConnectionEvent struct {
	Type ConnectionEventType
	Err  error
}

type PlayerEventType int

const (
	PlayerPlaying PlayerEventType = iota
	PlayerPaused
	// PlayerIdle marks the end of a stream, natural or forced.
	PlayerIdle
	PlayerError
)

func (t PlayerEventType) String() string {
	switch t {
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	case PlayerIdle:
		return "idle"
	case PlayerError:
		return "error"
	default:
		return "unknown"
	}
}

type PlayerEvent struct {
	Type       PlayerEventType
	Generation uint64
	Err        error
}
