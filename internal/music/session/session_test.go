package session_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/session/mocks"
	"github.com/keshon/jukebox/internal/music/session/sessiontest"
)

var testKey = session.ChannelKey{GuildID: "g1", ChannelID: "c1"}

func entry(title string) *session.QueueEntry {
	return &session.QueueEntry{
		SourceURL:       "https://www.youtube.com/watch?v=" + title,
		Title:           title,
		DurationSeconds: 180,
	}
}

// openSession returns a session whose events are applied by hand.
func openSession(t *testing.T, tr *sessiontest.Transport) (*session.Session, *sessiontest.Player) {
	t.Helper()
	if tr == nil {
		tr = &sessiontest.Transport{}
	}
	conn := &sessiontest.Connector{}
	s, err := session.Open(context.Background(), testKey, session.Options{
		Connector: conn,
		Transport: tr,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, conn.Connections()[0].Player()
}

func idleEvent(p *sessiontest.Player) session.PlayerEvent {
	return session.PlayerEvent{Type: session.PlayerIdle, Generation: p.Generation()}
}

func TestOpen(t *testing.T) {
	t.Run("ready connection yields idle session", func(t *testing.T) {
		s, _ := openSession(t, nil)
		assert.Equal(t, session.StateIdle, s.State())
		assert.Equal(t, testKey, s.Key())
	})

	t.Run("times out and destroys the connection", func(t *testing.T) {
		conn := &sessiontest.Connector{NoReady: true}
		_, err := session.Open(context.Background(), testKey, session.Options{
			Connector:      conn,
			Transport:      &sessiontest.Transport{},
			ConnectTimeout: 20 * time.Millisecond,
			Logger:         zerolog.Nop(),
		})
		require.ErrorIs(t, err, session.ErrConnectionTimeout)
		require.Len(t, conn.Connections(), 1)
		assert.True(t, conn.Connections()[0].Destroyed())
	})

	t.Run("connector error is a connection failure", func(t *testing.T) {
		conn := &sessiontest.Connector{Fail: errors.New("gateway closed")}
		_, err := session.Open(context.Background(), testKey, session.Options{
			Connector: conn,
			Transport: &sessiontest.Transport{},
			Logger:    zerolog.Nop(),
		})
		assert.ErrorIs(t, err, session.ErrConnectionTimeout)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		conn := &sessiontest.Connector{NoReady: true}
		_, err := session.Open(ctx, testKey, session.Options{
			Connector: conn,
			Transport: &sessiontest.Transport{},
			Logger:    zerolog.Nop(),
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, conn.Connections()[0].Destroyed())
	})
}

func TestEnqueue(t *testing.T) {
	s, p := openSession(t, nil)
	a, b, c := entry("A"), entry("B"), entry("C")

	res, err := s.Enqueue(a)
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Same(t, a, res.Entry)
	assert.Equal(t, session.StatePlaying, s.State())
	assert.Equal(t, 1, p.Plays())

	res, err = s.Enqueue(b)
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, 1, res.Position)

	res, err = s.Enqueue(c)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position)

	snap := s.Snapshot()
	assert.Same(t, a, snap.Current)
	assert.Equal(t, []*session.QueueEntry{b, c}, snap.Queue)

	_, err = s.Enqueue(b)
	assert.ErrorIs(t, err, session.ErrDuplicateEntry)
	assert.ErrorIs(t, err, session.ErrInvalidForState)
	_, err = s.Enqueue(a)
	assert.ErrorIs(t, err, session.ErrDuplicateEntry)
}

func TestAdvanceIsFIFO(t *testing.T) {
	s, p := openSession(t, nil)
	a, b, c := entry("A"), entry("B"), entry("C")
	for _, e := range []*session.QueueEntry{a, b, c} {
		_, err := s.Enqueue(e)
		require.NoError(t, err)
	}

	for _, want := range []*session.QueueEntry{b, c} {
		p.Finish()
		s.HandlePlayerEvent(idleEvent(p))
		assert.Same(t, want, s.Snapshot().Current)
	}

	p.Finish()
	s.HandlePlayerEvent(idleEvent(p))
	snap := s.Snapshot()
	assert.Equal(t, session.StateIdle, snap.State)
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Queue)
}

func TestSkipAndNaturalEndAdvanceOnce(t *testing.T) {
	s, p := openSession(t, nil)
	a, b, c := entry("A"), entry("B"), entry("C")
	for _, e := range []*session.QueueEntry{a, b, c} {
		_, err := s.Enqueue(e)
		require.NoError(t, err)
	}

	ended := idleEvent(p)
	res, err := s.Skip()
	require.NoError(t, err)
	assert.Same(t, a, res.Skipped)
	assert.Same(t, b, res.Next)

	// The natural end and the skip both report the same generation.
	s.HandlePlayerEvent(ended)
	s.HandlePlayerEvent(ended)

	snap := s.Snapshot()
	assert.Same(t, b, snap.Current)
	assert.Equal(t, []*session.QueueEntry{c}, snap.Queue)
}

func TestSkipWhileIdle(t *testing.T) {
	s, _ := openSession(t, nil)
	_, err := s.Skip()
	assert.ErrorIs(t, err, session.ErrNothingPlaying)
}

func TestStreamErrorsAdvance(t *testing.T) {
	t.Run("player error", func(t *testing.T) {
		s, p := openSession(t, nil)
		a, b := entry("A"), entry("B")
		_, _ = s.Enqueue(a)
		_, _ = s.Enqueue(b)

		gen := p.Generation()
		p.Fail(errors.New("decode"))
		s.HandlePlayerEvent(session.PlayerEvent{Type: session.PlayerError, Generation: gen, Err: errors.New("decode")})

		assert.Same(t, b, s.Snapshot().Current)
		assert.Equal(t, session.StatePlaying, s.State())
	})

	t.Run("open failure falls through the queue", func(t *testing.T) {
		a, b, c := entry("A"), entry("B"), entry("C")
		tr := &sessiontest.Transport{Fail: map[string]error{b.SourceURL: errors.New("403")}}
		s, p := openSession(t, tr)
		_, _ = s.Enqueue(a)
		_, _ = s.Enqueue(b)
		_, _ = s.Enqueue(c)

		p.Finish()
		s.HandlePlayerEvent(idleEvent(p))

		assert.Same(t, c, s.Snapshot().Current)
		assert.Equal(t, []string{a.SourceURL, b.SourceURL, c.SourceURL}, tr.Opened())
	})

	t.Run("open failure while idle", func(t *testing.T) {
		a := entry("A")
		tr := &sessiontest.Transport{Fail: map[string]error{a.SourceURL: errors.New("gone")}}
		s, _ := openSession(t, tr)

		_, err := s.Enqueue(a)
		assert.ErrorIs(t, err, session.ErrStreamFailure)
		assert.Equal(t, session.StateIdle, s.State())
	})

	t.Run("stale generation is ignored", func(t *testing.T) {
		s, p := openSession(t, nil)
		a, b := entry("A"), entry("B")
		_, _ = s.Enqueue(a)
		_, _ = s.Enqueue(b)

		s.HandlePlayerEvent(session.PlayerEvent{Type: session.PlayerIdle, Generation: p.Generation() - 1})
		assert.Same(t, a, s.Snapshot().Current)
	})
}

func TestPauseResume(t *testing.T) {
	s, p := openSession(t, nil)

	_, err := s.Pause()
	assert.ErrorIs(t, err, session.ErrNothingPlaying)
	_, err = s.Resume()
	assert.ErrorIs(t, err, session.ErrInvalidForState)

	_, _ = s.Enqueue(entry("A"))

	changed, err := s.Pause()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, p.Paused())
	assert.Equal(t, session.StatePaused, s.State())

	changed, err = s.Pause()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, session.StatePaused, s.State())

	changed, err = s.Resume()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, session.StatePlaying, s.State())

	changed, err = s.Resume()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSkipWhilePaused(t *testing.T) {
	s, p := openSession(t, nil)
	a, b := entry("A"), entry("B")
	_, _ = s.Enqueue(a)
	_, _ = s.Enqueue(b)
	_, _ = s.Pause()

	ended := idleEvent(p)
	_, err := s.Skip()
	require.NoError(t, err)
	s.HandlePlayerEvent(ended)

	assert.Same(t, b, s.Snapshot().Current)
	assert.Equal(t, session.StatePlaying, s.State())
}

func TestClose(t *testing.T) {
	conn := &sessiontest.Connector{}
	s, err := session.Open(context.Background(), testKey, session.Options{
		Connector: conn,
		Transport: &sessiontest.Transport{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	_, _ = s.Enqueue(entry("A"))
	_, _ = s.Enqueue(entry("B"))

	assert.True(t, s.Close(session.ReasonStopped))
	assert.False(t, s.Close(session.ReasonStopped))

	c := conn.Connections()[0]
	assert.True(t, c.Destroyed())
	assert.False(t, c.Player().Playing())
	assert.Equal(t, session.ReasonStopped, s.Reason())

	snap := s.Snapshot()
	assert.Equal(t, session.StateDisconnected, snap.State)
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Queue)

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}

	_, err = s.Enqueue(entry("C"))
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	_, err = s.Pause()
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	_, err = s.Skip()
	assert.ErrorIs(t, err, session.ErrSessionClosed)
}

func TestQueueEntryDisplayDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "live"},
		{59, "0:59"},
		{225, "3:45"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		e := &session.QueueEntry{DurationSeconds: tt.seconds}
		assert.Equal(t, tt.want, e.DisplayDuration())
		assert.Equal(t, time.Duration(tt.seconds)*time.Second, e.Duration())
	}
}

func TestDispatchOpensStreamsInQueueOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	a, b := entry("A"), entry("B")

	gomock.InOrder(
		tr.EXPECT().OpenStream(gomock.Any(), a.SourceURL).Return(io.NopCloser(strings.NewReader("")), nil),
		tr.EXPECT().OpenStream(gomock.Any(), b.SourceURL).Return(nil, errors.New("unavailable")),
	)

	conn := &sessiontest.Connector{}
	s, err := session.Open(context.Background(), testKey, session.Options{
		Connector: conn,
		Transport: tr,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	p := conn.Connections()[0].Player()

	_, err = s.Enqueue(a)
	require.NoError(t, err)
	_, err = s.Enqueue(b)
	require.NoError(t, err)

	p.Finish()
	s.HandlePlayerEvent(idleEvent(p))

	assert.Equal(t, session.StateIdle, s.State())
	assert.Nil(t, s.Snapshot().Current)
}
