package session

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/keshon/jukebox/pkg/util"
)

// closeWorkers bounds how many sessions CloseAll tears down at once.
const closeWorkers = 8

// Factory builds a connected Session for key.
type Factory func(ctx context.Context, key ChannelKey) (*Session, error)

// Registry maps channels to their live Sessions. Connection setup runs
// outside the registry lock, so a slow join in one channel never blocks
// lookups or joins in another. Lock order is registry, then session.
type Registry struct {
	mu       sync.Mutex
	sessions map[ChannelKey]*Session
	pending  map[ChannelKey]*inflight
}

type inflight struct {
	done    chan struct{}
	session *Session
	err     error
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[ChannelKey]*Session),
		pending:  make(map[ChannelKey]*inflight),
	}
}

// Get returns the live session for key.
func (r *Registry) Get(key ChannelKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// GetOrCreate returns the session for key, calling factory at most once per
// key no matter how many callers race. Callers arriving while the factory
// runs wait for its outcome. A failed factory registers nothing. created
// is true only for the caller whose factory call produced the session.
//
// Discord allows one voice connection per guild, so a request for a second
// channel in a guild that already has a session (or a pending one) fails
// with ErrChannelBusy. A request arriving while the guild's previous session
// is still disconnecting waits for that to finish.
func (r *Registry) GetOrCreate(ctx context.Context, key ChannelKey, factory Factory) (s *Session, created bool, err error) {
	for {
		r.mu.Lock()
		closing := r.settleGuildLocked(key.GuildID)
		if closing == nil {
			break
		}
		r.mu.Unlock()
		// The guild's voice connection is still being torn down.
		select {
		case <-closing.Released():
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	if s, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	if p, ok := r.pending[key]; ok {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.session, false, p.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if r.guildBusyLocked(key) {
		r.mu.Unlock()
		return nil, false, ErrChannelBusy
	}
	p := &inflight{done: make(chan struct{})}
	r.pending[key] = p
	r.mu.Unlock()

	s, err = factory(ctx, key)

	r.mu.Lock()
	delete(r.pending, key)
	if err == nil {
		r.sessions[key] = s
	}
	p.session, p.err = s, err
	close(p.done)
	r.mu.Unlock()

	if err != nil {
		return nil, false, err
	}
	s.bind(func() { r.detach(key, s) })
	return s, true, nil
}

// InGuild returns the key of the session, live or connecting, that occupies
// guildID. Sessions being closed are skipped.
func (r *Registry) InGuild(guildID string) (ChannelKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.sessions {
		if k.GuildID == guildID && !s.Closed() {
			return k, true
		}
	}
	for k := range r.pending {
		if k.GuildID == guildID {
			return k, true
		}
	}
	return ChannelKey{}, false
}

// Remove drops the entry for key without closing it.
func (r *Registry) Remove(key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Keys returns the registered keys in a stable order.
func (r *Registry) Keys() []ChannelKey {
	r.mu.Lock()
	keys := make([]ChannelKey, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.SortFunc(keys, func(a, b ChannelKey) int {
		return cmp.Or(cmp.Compare(a.GuildID, b.GuildID), cmp.Compare(a.ChannelID, b.ChannelID))
	})
	return keys
}

// CloseAll tears down every registered session.
func (r *Registry) CloseAll(reason CloseReason) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	// Each Close waits on the voice gateway, so guilds are left concurrently.
	_ = util.Parallel(context.Background(), all, closeWorkers, func(_ context.Context, s *Session) error {
		s.Close(reason)
		return nil
	})
}

// detach removes key only if it still maps to s, so a replacement session
// created after a teardown is left alone.
func (r *Registry) detach(key ChannelKey, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
}

// settleGuildLocked drops the released sessions of guildID and returns one
// that is still tearing down, if any.
func (r *Registry) settleGuildLocked(guildID string) *Session {
	for k, s := range r.sessions {
		if k.GuildID != guildID || !s.Closed() {
			continue
		}
		select {
		case <-s.Released():
			delete(r.sessions, k)
		default:
			return s
		}
	}
	return nil
}

func (r *Registry) guildBusyLocked(key ChannelKey) bool {
	for k, s := range r.sessions {
		if k.GuildID == key.GuildID && k != key && !s.Closed() {
			return true
		}
	}
	for k := range r.pending {
		if k.GuildID == key.GuildID && k != key {
			return true
		}
	}
	return false
}
