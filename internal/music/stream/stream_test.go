package stream

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/music/session"
)

type linkFunc func(ctx context.Context, sourceURL string) (string, error)

func (f linkFunc) StreamURL(ctx context.Context, sourceURL string) (string, error) {
	return f(ctx, sourceURL)
}

func TestOpenStreamRejectsEmptyURL(t *testing.T) {
	tr := NewTransport(nil, "", zerolog.Nop())
	_, err := tr.OpenStream(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrStreamFailure)
}

func TestLinkFailureSurfacesOnRead(t *testing.T) {
	calls := 0
	tr := NewTransport(linkFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("video unavailable")
	}), "", zerolog.Nop())

	s, err := tr.OpenStream(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Zero(t, calls, "link lookup must wait for the first read")

	_, err = s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, session.ErrStreamFailure)
	_, err = s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, session.ErrStreamFailure)
	assert.Equal(t, 1, calls)
	assert.NoError(t, s.Close())
}

func TestMissingFFmpeg(t *testing.T) {
	tr := NewTransport(linkFunc(func(context.Context, string) (string, error) {
		return "https://media.example/audio", nil
	}), filepath.Join(t.TempDir(), "no-ffmpeg"), zerolog.Nop())

	s, err := tr.OpenStream(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	_, err = s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, session.ErrStreamFailure)
}

func TestCloseBeforeRead(t *testing.T) {
	tr := NewTransport(linkFunc(func(context.Context, string) (string, error) {
		t.Fatal("closed stream must not look up links")
		return "", nil
	}), "", zerolog.Nop())

	s, err := tr.OpenStream(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestFFmpegArgs(t *testing.T) {
	tr := NewTransport(nil, "", zerolog.Nop())
	args := tr.ffmpegArgs("https://media.example/a")
	assert.Contains(t, args, "https://media.example/a")
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.Subset(t, args, []string{"-f", "s16le", "-ar", "48000", "-ac", "2"})
}
