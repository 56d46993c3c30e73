package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/session/sessiontest"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

func newTestServer(t *testing.T) (*Server, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry()
	return NewServer(0, reg, jobmgr.NewManager(zerolog.Nop()), zerolog.Nop()), reg
}

func TestLiveness(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Bot is running", rec.Body.String())
}

func TestStatusListsSessions(t *testing.T) {
	srv, reg := newTestServer(t)
	key := session.ChannelKey{GuildID: "g", ChannelID: "c"}
	s, _, err := reg.GetOrCreate(context.Background(), key, func(ctx context.Context, k session.ChannelKey) (*session.Session, error) {
		return session.Open(ctx, k, session.Options{
			Connector: &sessiontest.Connector{},
			Transport: &sessiontest.Transport{},
			Logger:    zerolog.Nop(),
		})
	})
	require.NoError(t, err)
	_, err = s.Enqueue(&session.QueueEntry{SourceURL: "u", Title: "Song A"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string          `json:"status"`
		Sessions []sessionStatus `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "playing", body.Sessions[0].State)
	assert.Equal(t, "Song A", body.Sessions[0].Current)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
