package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/stream"
)

var errLeftChannel = errors.New("bot is no longer in the voice channel")

// VoiceConnector joins voice channels. Discord allows one voice connection
// per guild, so connections are tracked by guild.
type VoiceConnector struct {
	dg  *discordgo.Session
	log zerolog.Logger

	mu    sync.Mutex
	conns map[string]*voiceConn
}

func NewVoiceConnector(dg *discordgo.Session, log zerolog.Logger) *VoiceConnector {
	return &VoiceConnector{
		dg:    dg,
		log:   log,
		conns: make(map[string]*voiceConn),
	}
}

// Connect starts joining the channel and returns at once. The connection
// reports ConnectionReady once the voice handshake completes, or
// ConnectionDisconnected if it fails.
func (c *VoiceConnector) Connect(ctx context.Context, key session.ChannelKey) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc := c.track(key)
	go func() {
		v, err := c.dg.ChannelVoiceJoin(key.GuildID, key.ChannelID, false, true)
		vc.joined(v, err)
	}()
	return vc, nil
}

func (c *VoiceConnector) track(key session.ChannelKey) *voiceConn {
	vc := &voiceConn{
		key:    key,
		log:    c.log.With().Str("guild", key.GuildID).Str("channel", key.ChannelID).Logger(),
		events: make(chan session.ConnectionEvent, 2),
		forget: c.forget,
	}
	c.mu.Lock()
	c.conns[key.GuildID] = vc
	c.mu.Unlock()
	return vc
}

func (c *VoiceConnector) forget(vc *voiceConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[vc.key.GuildID] == vc {
		delete(c.conns, vc.key.GuildID)
	}
}

// handleBotVoiceState drops the guild's connection when the bot's own
// voice state shows it outside the channel it joined: kicked, moved, or the
// channel was deleted.
func (c *VoiceConnector) handleBotVoiceState(vs *discordgo.VoiceState) {
	c.mu.Lock()
	vc := c.conns[vs.GuildID]
	c.mu.Unlock()
	if vc == nil || !vc.isReady() || vs.ChannelID == vc.key.ChannelID {
		return
	}
	vc.log.Info().Str("now_in", vs.ChannelID).Msg("bot left voice channel")
	vc.drop(errLeftChannel)
}

// voiceConn implements session.Connection on top of a discordgo voice
// connection.
type voiceConn struct {
	key    session.ChannelKey
	log    zerolog.Logger
	events chan session.ConnectionEvent
	forget func(*voiceConn)

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	ready     bool
	dropped   bool
	destroyed bool
}

func (c *voiceConn) Events() <-chan session.ConnectionEvent { return c.events }

func (c *voiceConn) NewPlayer() session.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stream.NewPlayer(voiceSink{c.vc}, c.log)
}

// Destroy leaves the channel. A join still in flight is abandoned and
// undone when it completes.
func (c *voiceConn) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	v := c.vc
	c.mu.Unlock()

	c.forget(c)
	if v != nil {
		if err := v.Disconnect(); err != nil {
			c.log.Warn().Err(err).Msg("voice disconnect failed")
		}
	}
}

func (c *voiceConn) joined(v *discordgo.VoiceConnection, err error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		if err == nil {
			c.log.Debug().Msg("join completed after connection was abandoned, leaving")
			_ = v.Disconnect()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.drop(fmt.Errorf("join voice channel: %w", err))
		return
	}
	c.vc = v
	c.ready = true
	c.mu.Unlock()

	c.log.Info().Msg("joined voice channel")
	c.send(session.ConnectionEvent{Type: session.ConnectionReady})
}

func (c *voiceConn) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.destroyed
}

// drop reports the connection as lost, once.
func (c *voiceConn) drop(err error) {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return
	}
	c.dropped = true
	c.mu.Unlock()
	c.send(session.ConnectionEvent{Type: session.ConnectionDisconnected, Err: err})
}

func (c *voiceConn) send(ev session.ConnectionEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Int("event", int(ev.Type)).Msg("connection event dropped")
	}
}

type voiceSink struct {
	vc *discordgo.VoiceConnection
}

func (s voiceSink) Speaking(b bool) error   { return s.vc.Speaking(b) }
func (s voiceSink) OpusSend() chan<- []byte { return s.vc.OpusSend }
