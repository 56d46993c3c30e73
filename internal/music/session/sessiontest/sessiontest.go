// Package sessiontest provides in-memory Connector, Connection, Player and
// Transport implementations for exercising sessions without Discord.
package sessiontest

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/jukebox/internal/music/session"
)

// Connector hands out fake connections. By default they report ready
// immediately.
type Connector struct {
	// Fail makes Connect return this error.
	Fail error
	// NoReady leaves connections pending forever.
	NoReady bool
	// Gate, when set, delays readiness until it is closed.
	Gate chan struct{}
	// DestroyDelay makes Destroy block, like a real voice disconnect.
	DestroyDelay time.Duration

	calls atomic.Int32
	mu    sync.Mutex
	conns []*Connection
}

func (c *Connector) Connect(ctx context.Context, key session.ChannelKey) (session.Connection, error) {
	c.calls.Add(1)
	if c.Fail != nil {
		return nil, c.Fail
	}
	conn := NewConnection(key)
	conn.destroyDelay = c.DestroyDelay
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()

	switch {
	case c.NoReady:
	case c.Gate != nil:
		go func() {
			<-c.Gate
			conn.Ready()
		}()
	default:
		conn.Ready()
	}
	return conn, nil
}

// Calls returns how many times Connect ran.
func (c *Connector) Calls() int { return int(c.calls.Load()) }

// Connections returns every connection handed out so far.
func (c *Connector) Connections() []*Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Connection(nil), c.conns...)
}

// Connection is a fake voice connection owning one Player.
type Connection struct {
	Key          session.ChannelKey
	events       chan session.ConnectionEvent
	player       *Player
	destroyDelay time.Duration
	destroying   atomic.Bool
	destroyed    atomic.Bool
}

func NewConnection(key session.ChannelKey) *Connection {
	return &Connection{
		Key:    key,
		events: make(chan session.ConnectionEvent, 4),
		player: NewPlayer(),
	}
}

func (c *Connection) Events() <-chan session.ConnectionEvent { return c.events }
func (c *Connection) NewPlayer() session.Player              { return c.player }

func (c *Connection) Destroy() {
	c.destroying.Store(true)
	time.Sleep(c.destroyDelay)
	c.destroyed.Store(true)
}

// Player returns the fake player bound to this connection.
func (c *Connection) Player() *Player { return c.player }

func (c *Connection) Destroyed() bool { return c.destroyed.Load() }

// Destroying reports whether Destroy has been entered.
func (c *Connection) Destroying() bool { return c.destroying.Load() }

// Ready reports the connection as ready.
func (c *Connection) Ready() {
	c.events <- session.ConnectionEvent{Type: session.ConnectionReady}
}

// Drop reports the transport as lost.
func (c *Connection) Drop(err error) {
	c.events <- session.ConnectionEvent{Type: session.ConnectionDisconnected, Err: err}
}

// Player records calls and emits the events a real player would.
type Player struct {
	// FailPlay makes Play return this error.
	FailPlay error

	mu      sync.Mutex
	events  chan session.PlayerEvent
	gen     uint64
	playing bool
	paused  bool
	plays   int
	stops   int
}

func NewPlayer() *Player {
	return &Player{events: make(chan session.PlayerEvent, 64)}
}

func (p *Player) Events() <-chan session.PlayerEvent { return p.events }

func (p *Player) Play(stream session.Stream, gen uint64) error {
	if p.FailPlay != nil {
		return p.FailPlay
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.emit(session.PlayerEvent{Type: session.PlayerIdle, Generation: p.gen})
	}
	_ = stream.Close()
	p.gen = gen
	p.playing = true
	p.paused = false
	p.plays++
	p.emit(session.PlayerEvent{Type: session.PlayerPlaying, Generation: gen})
	return nil
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.paused {
		return false
	}
	p.paused = true
	p.emit(session.PlayerEvent{Type: session.PlayerPaused, Generation: p.gen})
	return true
}

func (p *Player) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || !p.paused {
		return false
	}
	p.paused = false
	p.emit(session.PlayerEvent{Type: session.PlayerPlaying, Generation: p.gen})
	return true
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.endLocked(session.PlayerEvent{Type: session.PlayerIdle, Generation: p.gen})
}

// Finish ends the current stream as if it ran out of data.
func (p *Player) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked(session.PlayerEvent{Type: session.PlayerIdle, Generation: p.gen})
}

// Fail ends the current stream with a stream error.
func (p *Player) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked(session.PlayerEvent{Type: session.PlayerError, Generation: p.gen, Err: err})
}

// Emit pushes an arbitrary event.
func (p *Player) Emit(ev session.PlayerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(ev)
}

func (p *Player) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *Player) endLocked(ev session.PlayerEvent) {
	if !p.playing {
		return
	}
	p.playing = false
	p.paused = false
	p.emit(ev)
}

func (p *Player) emit(ev session.PlayerEvent) {
	select {
	case p.events <- ev:
	default:
	}
}

// Transport returns empty streams and records the URLs it was asked for.
type Transport struct {
	// Fail maps source URLs to the error OpenStream returns for them.
	Fail map[string]error

	mu     sync.Mutex
	opened []string
}

func (t *Transport) OpenStream(ctx context.Context, url string) (session.Stream, error) {
	t.mu.Lock()
	t.opened = append(t.opened, url)
	t.mu.Unlock()
	if err := t.Fail[url]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// Opened returns the URLs passed to OpenStream, in order.
func (t *Transport) Opened() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.opened...)
}
