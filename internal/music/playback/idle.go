package playback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

// DefaultIdleGrace is how long the bot stays alone in a channel before
// leaving.
const DefaultIdleGrace = 5 * time.Second

// IdleMonitor leaves channels the bot has been left alone in. Each check is
// re-verified when its delay expires, so someone rejoining in the meantime
// keeps the session alive.
type IdleMonitor struct {
	registry  *session.Registry
	occupancy Occupancy
	jobs      *jobmgr.Manager
	grace     time.Duration
	log       zerolog.Logger
}

func NewIdleMonitor(registry *session.Registry, occupancy Occupancy, jobs *jobmgr.Manager, grace time.Duration, log zerolog.Logger) *IdleMonitor {
	if grace <= 0 {
		grace = DefaultIdleGrace
	}
	return &IdleMonitor{
		registry:  registry,
		occupancy: occupancy,
		jobs:      jobs,
		grace:     grace,
		log:       log,
	}
}

// Observe is called with the channels involved in an occupancy change,
// typically the one a member left and the one they joined.
func (m *IdleMonitor) Observe(keys ...session.ChannelKey) {
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		if _, ok := m.registry.Get(key); !ok {
			continue
		}
		if !m.alone(key) {
			continue
		}

		err := m.jobs.StartAsync(jobName(key), func(ctx context.Context) error {
			timer := time.NewTimer(m.grace)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
			m.expire(key)
			return nil
		})
		if errors.Is(err, jobmgr.ErrJobRunning) {
			continue
		}
		m.log.Debug().Str("guild", key.GuildID).Str("channel", key.ChannelID).Dur("grace", m.grace).Msg("bot alone, idle check scheduled")
	}
}

func (m *IdleMonitor) expire(key session.ChannelKey) {
	s, ok := m.registry.Get(key)
	if !ok {
		return
	}
	if !m.alone(key) {
		m.log.Debug().Str("guild", key.GuildID).Str("channel", key.ChannelID).Msg("channel occupied again, staying")
		return
	}
	if s.Close(session.ReasonIdle) {
		m.log.Info().Str("guild", key.GuildID).Str("channel", key.ChannelID).Msg("left empty voice channel")
	}
}

func (m *IdleMonitor) alone(key session.ChannelKey) bool {
	members, botPresent := m.occupancy.Members(key)
	return botPresent && members <= 1
}

func jobName(key session.ChannelKey) string {
	return "idle:" + key.String()
}
