// Package session holds per-channel playback state: the queue, the current
// entry, and the voice connection and player that render it.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultConnectTimeout bounds how long Open waits for a connection to
// become ready.
const DefaultConnectTimeout = 5 * time.Second

// Options carries the dependencies Open needs to build a Session.
type Options struct {
	Connector      Connector
	Transport      Transport
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Session is the playback state of one voice channel. All fields are guarded
// by mu; player and connection events are applied by a single goroutine in
// arrival order.
type Session struct {
	key       ChannelKey
	transport Transport
	log       zerolog.Logger

	mu      sync.Mutex
	state   State
	queue   []*QueueEntry
	current *QueueEntry
	gen     uint64
	conn    Connection
	player  Player
	reason  CloseReason
	release func()

	// closed mirrors state == StateDisconnected for lock-free readers.
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	released chan struct{}
	start    sync.Once
}

// EnqueueResult describes where an enqueued entry ended up.
type EnqueueResult struct {
	Entry *QueueEntry
	// Position is the 1-based queue position, zero when Started.
	Position int
	Started  bool
}

// SkipResult reports the entry being skipped and the one expected next.
type SkipResult struct {
	Skipped *QueueEntry
	Next    *QueueEntry
}

// Snapshot is a point-in-time copy of a Session's visible state.
type Snapshot struct {
	State   State
	Current *QueueEntry
	Queue   []*QueueEntry
}

// Open connects to the channel and returns an Idle session. When the
// connection does not report ready within the timeout it is destroyed and
// ErrConnectionTimeout is returned. The session starts applying events once
// it is registered.
func Open(ctx context.Context, key ChannelKey, opts Options) (*Session, error) {
	log := opts.Logger.With().
		Str("guild", key.GuildID).
		Str("channel", key.ChannelID).
		Logger()

	log.Debug().Stringer("from", StateDisconnected).Stringer("to", StateConnecting).Msg("state transition")

	conn, err := opts.Connector.Connect(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionTimeout, err)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if err := waitReady(ctx, conn, timeout); err != nil {
		conn.Destroy()
		log.Warn().Err(err).Dur("timeout", timeout).Msg("voice connection failed")
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		key:       key,
		transport: opts.Transport,
		log:       log,
		state:     StateIdle,
		conn:      conn,
		player:    conn.NewPlayer(),
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		released:  make(chan struct{}),
	}
	log.Debug().Stringer("from", StateConnecting).Stringer("to", StateIdle).Msg("state transition")
	return s, nil
}

func waitReady(ctx context.Context, conn Connection, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return fmt.Errorf("%w: connection closed while joining", ErrConnectionTimeout)
			}
			switch ev.Type {
			case ConnectionReady:
				return nil
			case ConnectionDisconnected:
				return fmt.Errorf("%w: %v", ErrConnectionTimeout, ev.Err)
			}
		case <-timer.C:
			return fmt.Errorf("%w after %s", ErrConnectionTimeout, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Key returns the channel this session plays in.
func (s *Session) Key() ChannelKey { return s.key }

// Done is closed as soon as Close starts tearing the session down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Released is closed once Close has destroyed the connection and dropped
// the registry entry.
func (s *Session) Released() <-chan struct{} { return s.released }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether Close has been called. It never waits on the
// session lock.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Reason returns why the session was closed, or "" while it is live.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.state,
		Current: s.current,
		Queue:   slices.Clone(s.queue),
	}
}

// Enqueue plays entry immediately when the session is idle and appends it to
// the queue otherwise.
func (s *Session) Enqueue(entry *QueueEntry) (EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return EnqueueResult{}, ErrSessionClosed
	}
	if entry == s.current || slices.Contains(s.queue, entry) {
		return EnqueueResult{}, ErrDuplicateEntry
	}

	if s.state == StateIdle {
		if started := s.dispatchLocked(entry); started != nil {
			return EnqueueResult{Entry: started, Started: true}, nil
		}
		return EnqueueResult{}, fmt.Errorf("%w: %s", ErrStreamFailure, entry.Title)
	}

	s.queue = append(s.queue, entry)
	s.log.Info().Str("title", entry.Title).Int("position", len(s.queue)).Msg("queued")
	return EnqueueResult{Entry: entry, Position: len(s.queue)}, nil
}

// Skip stops the current stream. The end-of-stream event that follows
// advances the queue, so a skip racing a natural end advances only once.
func (s *Session) Skip() (SkipResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return SkipResult{}, ErrSessionClosed
	}
	if !s.state.Active() {
		return SkipResult{}, ErrNothingPlaying
	}

	res := SkipResult{Skipped: s.current}
	if len(s.queue) > 0 {
		res.Next = s.queue[0]
	}
	s.log.Info().Str("title", s.current.Title).Msg("skip requested")
	s.player.Stop()
	return res, nil
}

// Pause suspends playback. It returns false when already paused.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return false, ErrSessionClosed
	case StatePaused:
		return false, nil
	case StatePlaying:
		if !s.player.Pause() {
			return false, ErrNothingPlaying
		}
		s.setStateLocked(StatePaused)
		return true, nil
	default:
		return false, ErrNothingPlaying
	}
}

// Resume continues paused playback. It returns false when already playing.
func (s *Session) Resume() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return false, ErrSessionClosed
	case StatePlaying:
		return false, nil
	case StatePaused:
		if !s.player.Unpause() {
			return false, ErrNothingPlaying
		}
		s.setStateLocked(StatePlaying)
		return true, nil
	default:
		return false, ErrNothingPlaying
	}
}

// Close tears the session down: the queue is cleared, the player stopped,
// the connection destroyed and finally the registry entry removed. Only the
// state change happens under the lock; the player and connection are shut
// down after it. It returns false if the session was already closed.
func (s *Session) Close(reason CloseReason) bool {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return false
	}

	s.queue = nil
	s.current = nil
	s.setStateLocked(StateDisconnected)
	s.closed.Store(true)
	s.reason = reason
	player, conn := s.player, s.conn
	release := s.release
	s.release = nil
	s.cancel()
	close(s.done)
	s.mu.Unlock()

	player.Stop()
	conn.Destroy()
	if release != nil {
		release()
	}
	close(s.released)
	s.log.Info().Str("reason", string(reason)).Msg("session closed")
	return true
}

// bind sets the hook that drops the registry entry on Close and starts the
// event goroutine.
func (s *Session) bind(release func()) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		release()
		return
	}
	s.release = release
	s.mu.Unlock()
	s.start.Do(func() { go s.run() })
}

func (s *Session) run() {
	connEvents := s.conn.Events()
	playerEvents := s.player.Events()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				continue
			}
			s.handlePlayerEvent(ev)
		case ev, ok := <-connEvents:
			if !ok || ev.Type == ConnectionDisconnected {
				var err error
				if ok {
					err = ev.Err
				}
				s.log.Warn().Err(err).Msg("voice connection lost")
				s.Close(ReasonDisconnected)
				return
			}
		}
	}
}

func (s *Session) handlePlayerEvent(ev PlayerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}
	if ev.Generation != s.gen {
		s.log.Debug().Stringer("event", ev.Type).Uint64("gen", ev.Generation).Uint64("current_gen", s.gen).Msg("stale player event")
		return
	}

	switch ev.Type {
	case PlayerIdle:
		if !s.state.Active() {
			return
		}
		s.log.Debug().Str("title", s.current.Title).Msg("stream ended")
		s.advanceLocked()
	case PlayerError:
		if !s.state.Active() {
			return
		}
		s.log.Error().Err(ev.Err).Str("title", s.current.Title).Msg("stream failed, advancing")
		s.setStateLocked(StateErrorRecovering)
		s.advanceLocked()
	}
}

func (s *Session) advanceLocked() {
	s.current = nil
	next := s.popLocked()
	if next == nil {
		s.setStateLocked(StateIdle)
		return
	}
	s.dispatchLocked(next)
}

// dispatchLocked starts entry, falling through the queue on immediate
// failures. It returns the entry that ended up playing, or nil when the
// session went idle.
func (s *Session) dispatchLocked(entry *QueueEntry) *QueueEntry {
	for entry != nil {
		stream, err := s.transport.OpenStream(s.ctx, entry.SourceURL)
		if err == nil {
			s.gen++
			if err = s.player.Play(stream, s.gen); err == nil {
				s.current = entry
				s.setStateLocked(StatePlaying)
				s.log.Info().Str("title", entry.Title).Uint64("gen", s.gen).Msg("now playing")
				return entry
			}
			_ = stream.Close()
		}

		s.log.Error().Err(err).Str("title", entry.Title).Msg("could not start stream")
		s.current = nil
		s.setStateLocked(StateErrorRecovering)
		entry = s.popLocked()
	}

	s.setStateLocked(StateIdle)
	return nil
}

func (s *Session) popLocked() *QueueEntry {
	if len(s.queue) == 0 {
		return nil
	}
	head := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return head
}

func (s *Session) setStateLocked(to State) {
	if s.state == to {
		return
	}
	s.log.Debug().Stringer("from", s.state).Stringer("to", to).Msg("state transition")
	s.state = to
}
