// Package discord runs the gateway connection: slash command registration
// and dispatch, voice connections and voice-state tracking.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/pkg/cmd"
)

// commandCreateInterval keeps command registration under Discord's rate limit.
const commandCreateInterval = time.Second / 40

// Bot is the Discord side of the jukebox.
type Bot struct {
	dg      *discordgo.Session
	cfg     *config.Config
	cmds    *cmd.Registry
	log     zerolog.Logger
	voice   *VoiceConnector
	guilds  *GuildState
	cache   commandCache
	limiter *rate.Limiter

	mu      sync.RWMutex
	ctx     context.Context
	observe func(keys ...session.ChannelKey)
}

// New prepares a gateway session. Nothing connects until Run.
func New(cfg *config.Config, cmds *cmd.Registry, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	return &Bot{
		dg:      dg,
		cfg:     cfg,
		cmds:    cmds,
		log:     log,
		voice:   NewVoiceConnector(dg, log.With().Str("part", "voice").Logger()),
		guilds:  NewGuildState(dg.State),
		cache:   commandCache{dir: cfg.CommandsCacheDir},
		limiter: rate.NewLimiter(rate.Every(commandCreateInterval), 1),
		ctx:     context.Background(),
	}, nil
}

// Voice returns the connector sessions join channels with.
func (b *Bot) Voice() *VoiceConnector { return b.voice }

// Guilds answers permission and occupancy lookups.
func (b *Bot) Guilds() *GuildState { return b.guilds }

// OnVoiceActivity sets the callback that receives the channels touched by
// every voice state change.
func (b *Bot) OnVoiceActivity(fn func(keys ...session.ChannelKey)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observe = fn
}

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) runContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

// onGuildCreate fires for every guild on startup and when the bot is added
// to a new one.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log := b.log.With().Str("guild", g.ID).Str("name", g.Name).Logger()

	if b.cfg.Blacklisted(g.ID) {
		log.Info().Msg("leaving blacklisted guild")
		if err := s.GuildLeave(g.ID); err != nil {
			log.Error().Err(err).Msg("leave guild failed")
		}
		return
	}
	if !b.cfg.InitSlashCommands {
		log.Debug().Msg("slash command registration disabled")
		return
	}
	if b.cfg.GuildID != "" && b.cfg.GuildID != g.ID {
		return
	}
	if err := b.registerCommands(b.runContext(), g.ID); err != nil {
		log.Error().Err(err).Msg("register slash commands failed")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	c := b.cmds.Get(name)
	if c == nil {
		b.log.Warn().Str("command", name).Msg("unknown command")
		return
	}

	resp := &interactionResponder{s: s, i: i}
	sc := &command.SlashInteractionContext{
		Session:   s,
		Event:     i,
		Responder: resp,
		Log:       b.log,
	}
	if err := c.Run(b.runContext(), &cmd.Invocation{Data: sc}); err != nil {
		b.log.Error().Err(err).Str("command", name).Msg("command failed")
		if rerr := resp.fail("Something went wrong running that command."); rerr != nil {
			b.log.Warn().Err(rerr).Str("command", name).Msg("could not report command failure")
		}
	}
}
