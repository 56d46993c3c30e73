package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/music/session"
)

type fakeSink struct {
	frames chan []byte

	mu       sync.Mutex
	speaking bool
}

func newFakeSink(buffer int) *fakeSink {
	return &fakeSink{frames: make(chan []byte, buffer)}
}

func (s *fakeSink) Speaking(b bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = b
	return nil
}

func (s *fakeSink) OpusSend() chan<- []byte { return s.frames }

type countingEncoder struct{}

func (countingEncoder) Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error) {
	return []byte{byte(len(pcm) % 256)}, nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

// blockingStream never yields data until closed.
type blockingStream struct {
	closed chan struct{}
	once   sync.Once
}

func (b *blockingStream) Read([]byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingStream) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func useFakeEncoder(t *testing.T) {
	t.Helper()
	orig := newEncoder
	newEncoder = func() (encoder, error) { return countingEncoder{}, nil }
	t.Cleanup(func() { newEncoder = orig })
}

func pcmFrames(n int) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(make([]byte, n*frameSize*channels*2)))
}

func nextEvent(t *testing.T, p *Player) session.PlayerEvent {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no player event")
		return session.PlayerEvent{}
	}
}

func TestPlayerStreamsToEnd(t *testing.T) {
	useFakeEncoder(t)
	sink := newFakeSink(8)
	p := NewPlayer(sink, zerolog.Nop())

	require.NoError(t, p.Play(pcmFrames(3), 7))

	assert.Equal(t, session.PlayerEvent{Type: session.PlayerPlaying, Generation: 7}, nextEvent(t, p))
	assert.Equal(t, session.PlayerEvent{Type: session.PlayerIdle, Generation: 7}, nextEvent(t, p))
	assert.Len(t, sink.frames, 3)
}

func TestPlayerReportsReadErrors(t *testing.T) {
	useFakeEncoder(t)
	p := NewPlayer(newFakeSink(1), zerolog.Nop())

	require.NoError(t, p.Play(io.NopCloser(failingReader{err: errors.New("403")}), 1))

	nextEvent(t, p)
	ev := nextEvent(t, p)
	assert.Equal(t, session.PlayerError, ev.Type)
	assert.Equal(t, uint64(1), ev.Generation)
	assert.ErrorIs(t, ev.Err, session.ErrStreamFailure)
}

func TestPlayerStopUnblocksRead(t *testing.T) {
	useFakeEncoder(t)
	p := NewPlayer(newFakeSink(1), zerolog.Nop())

	require.NoError(t, p.Play(&blockingStream{closed: make(chan struct{})}, 2))
	nextEvent(t, p)

	p.Stop()
	assert.Equal(t, session.PlayerEvent{Type: session.PlayerIdle, Generation: 2}, nextEvent(t, p))
}

func TestPlayerPauseResume(t *testing.T) {
	useFakeEncoder(t)
	sink := newFakeSink(0)
	p := NewPlayer(sink, zerolog.Nop())

	require.NoError(t, p.Play(pcmFrames(100), 3))
	nextEvent(t, p)

	<-sink.frames
	require.True(t, p.Pause())
	assert.False(t, p.Pause())
	assert.Equal(t, session.PlayerPaused, nextEvent(t, p).Type)

	// At most the frame already being sent gets through while paused.
	select {
	case <-sink.frames:
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case <-sink.frames:
		t.Fatal("frame sent while paused")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, p.Unpause())
	assert.False(t, p.Unpause())
	assert.Equal(t, session.PlayerPlaying, nextEvent(t, p).Type)
	<-sink.frames

	p.Stop()
	assert.Equal(t, session.PlayerIdle, nextEvent(t, p).Type)
}

func TestPlayerReplacesCurrentStream(t *testing.T) {
	useFakeEncoder(t)
	p := NewPlayer(newFakeSink(0), zerolog.Nop())

	require.NoError(t, p.Play(&blockingStream{closed: make(chan struct{})}, 1))
	nextEvent(t, p)
	require.NoError(t, p.Play(&blockingStream{closed: make(chan struct{})}, 2))

	seen := map[session.PlayerEvent]bool{}
	seen[nextEvent(t, p)] = true
	seen[nextEvent(t, p)] = true
	assert.True(t, seen[session.PlayerEvent{Type: session.PlayerIdle, Generation: 1}])
	assert.True(t, seen[session.PlayerEvent{Type: session.PlayerPlaying, Generation: 2}])

	p.Stop()
	assert.Equal(t, session.PlayerEvent{Type: session.PlayerIdle, Generation: 2}, nextEvent(t, p))
}

func TestPauseWithoutTrack(t *testing.T) {
	p := NewPlayer(newFakeSink(0), zerolog.Nop())
	assert.False(t, p.Pause())
	assert.False(t, p.Unpause())
	p.Stop()
}
