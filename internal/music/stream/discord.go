package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/keshon/jukebox/internal/music/session"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// VoiceSink is the part of a Discord voice connection the player writes to.
type VoiceSink interface {
	Speaking(bool) error
	OpusSend() chan<- []byte
}

type encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

var newEncoder = func() (encoder, error) {
	return gopus.NewEncoder(sampleRate, channels, gopus.Audio)
}

// Player encodes PCM streams to Opus and sends the frames to a voice sink,
// one stream at a time.
type Player struct {
	sink   VoiceSink
	log    zerolog.Logger
	events chan session.PlayerEvent

	mu  sync.Mutex
	cur *track
}

func NewPlayer(sink VoiceSink, log zerolog.Logger) *Player {
	return &Player{
		sink:   sink,
		log:    log,
		events: make(chan session.PlayerEvent, 16),
	}
}

func (p *Player) Events() <-chan session.PlayerEvent { return p.events }

// Play starts stream, ending whatever was playing before.
func (p *Player) Play(stream session.Stream, gen uint64) error {
	enc, err := newEncoder()
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}

	t := newTrack(gen)
	p.mu.Lock()
	prev := p.cur
	p.cur = t
	p.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go p.run(t, stream, enc)
	return nil
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t == nil || !t.pause() {
		return false
	}
	_ = p.sink.Speaking(false)
	p.emit(session.PlayerEvent{Type: session.PlayerPaused, Generation: t.gen})
	return true
}

func (p *Player) Unpause() bool {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t == nil || !t.unpause() {
		return false
	}
	_ = p.sink.Speaking(true)
	p.emit(session.PlayerEvent{Type: session.PlayerPlaying, Generation: t.gen})
	return true
}

func (p *Player) Stop() {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t != nil {
		t.stop()
	}
}

func (p *Player) run(t *track, stream session.Stream, enc encoder) {
	defer stream.Close()

	// Closing the stream unblocks a pending read when the track is stopped.
	go func() {
		select {
		case <-t.stopped:
			_ = stream.Close()
		case <-t.finished:
		}
	}()

	_ = p.sink.Speaking(true)
	p.emit(session.PlayerEvent{Type: session.PlayerPlaying, Generation: t.gen})

	err := p.pump(t, stream, enc)
	close(t.finished)

	p.mu.Lock()
	current := p.cur == t
	if current {
		p.cur = nil
	}
	p.mu.Unlock()
	if current {
		_ = p.sink.Speaking(false)
	}

	switch {
	case err == nil, t.isStopped(), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		p.emit(session.PlayerEvent{Type: session.PlayerIdle, Generation: t.gen})
	default:
		p.log.Warn().Err(err).Uint64("gen", t.gen).Msg("stream ended with error")
		p.emit(session.PlayerEvent{
			Type:       session.PlayerError,
			Generation: t.gen,
			Err:        fmt.Errorf("%w: %w", session.ErrStreamFailure, err),
		})
	}
}

func (p *Player) pump(t *track, stream io.Reader, enc encoder) error {
	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)
	out := p.sink.OpusSend()

	for {
		if !t.waitWhilePaused() {
			return nil
		}
		if _, err := io.ReadFull(stream, pcmBuf); err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, err := enc.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode opus: %w", err)
		}

		select {
		case out <- opus:
		case <-t.stopped:
			return nil
		}
	}
}

func (p *Player) emit(ev session.PlayerEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn().Stringer("event", ev.Type).Uint64("gen", ev.Generation).Msg("player event dropped")
	}
}

// track is the playback of one stream.
type track struct {
	gen      uint64
	stopped  chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newTrack(gen uint64) *track {
	return &track{
		gen:      gen,
		stopped:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (t *track) stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *track) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *track) pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused || t.isStopped() {
		return false
	}
	t.paused = true
	t.resume = make(chan struct{})
	return true
}

func (t *track) unpause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return false
	}
	t.paused = false
	close(t.resume)
	return true
}

// waitWhilePaused blocks until the track is unpaused. It returns false if
// the track was stopped instead.
func (t *track) waitWhilePaused() bool {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return !t.isStopped()
	}
	resume := t.resume
	t.mu.Unlock()

	select {
	case <-resume:
		return true
	case <-t.stopped:
		return false
	}
}
