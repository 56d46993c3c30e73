package stream

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
)

// LinkResolver maps a source page URL to a direct media URL.
type LinkResolver interface {
	StreamURL(ctx context.Context, sourceURL string) (string, error)
}

// Transport decodes sources to PCM with ffmpeg.
type Transport struct {
	links  LinkResolver
	ffmpeg string
	log    zerolog.Logger
}

func NewTransport(links LinkResolver, ffmpegPath string, log zerolog.Logger) *Transport {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transport{links: links, ffmpeg: ffmpegPath, log: log}
}

// OpenStream returns immediately. The media link is looked up and ffmpeg
// started on the first read, so failures surface as read errors.
func (t *Transport) OpenStream(ctx context.Context, sourceURL string) (session.Stream, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: empty source url", session.ErrStreamFailure)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &pcmStream{
		t:      t,
		url:    sourceURL,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) ffmpegArgs(link string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", link,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	}
}

type pcmStream struct {
	t      *Transport
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	openOnce  sync.Once
	closeOnce sync.Once
	cmd       *exec.Cmd
	out       io.ReadCloser
	err       error
}

func (s *pcmStream) Read(p []byte) (int, error) {
	s.openOnce.Do(s.open)
	if s.err != nil {
		return 0, s.err
	}
	return s.out.Read(p)
}

func (s *pcmStream) open() {
	link, err := s.t.links.StreamURL(s.ctx, s.url)
	if err != nil {
		s.err = fmt.Errorf("%w: resolve media link: %w", session.ErrStreamFailure, err)
		return
	}

	cmd := exec.CommandContext(s.ctx, s.t.ffmpeg, s.t.ffmpegArgs(link)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		s.err = fmt.Errorf("%w: stdout pipe: %w", session.ErrStreamFailure, err)
		return
	}
	if err := cmd.Start(); err != nil {
		s.err = fmt.Errorf("%w: start ffmpeg: %w", session.ErrStreamFailure, err)
		return
	}
	s.cmd = cmd
	s.out = out
	s.t.log.Debug().Str("url", s.url).Int("pid", cmd.Process.Pid).Msg("ffmpeg started")
}

func (s *pcmStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.openOnce.Do(func() { s.err = io.ErrClosedPipe })
		if s.cmd != nil {
			_ = s.cmd.Wait()
		}
	})
	return nil
}
