// Package music provides the /play, /skip, /stop, /queue, /pause, /resume
// and /help slash commands.
package music

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/music/playback"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/pkg/cmd"
)

const (
	group    = "music"
	category = "🎵 Music"
)

// Controller is the playback core the commands drive.
type Controller interface {
	Play(ctx context.Context, req playback.Request) playback.Reply
	Skip(ctx context.Context, key session.ChannelKey) playback.Reply
	Stop(ctx context.Context, key session.ChannelKey) playback.Reply
	Queue(ctx context.Context, key session.ChannelKey) playback.Reply
	Pause(ctx context.Context, key session.ChannelKey) playback.Reply
	Resume(ctx context.Context, key session.ChannelKey) playback.Reply
	Help() playback.Reply
}

// VoiceLocator finds the voice channel a user is connected to.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (string, bool)
}

// Register adds every music command to reg.
func Register(reg *cmd.Registry, ctrl Controller, voice VoiceLocator, mws ...cmd.Middleware) {
	command.RegisterCommand(reg, &PlayCommand{Controller: ctrl, Voice: voice}, mws...)
	for _, c := range controlCommands(ctrl, voice) {
		command.RegisterCommand(reg, c, mws...)
	}
	command.RegisterCommand(reg, &HelpCommand{Controller: ctrl}, mws...)
}

// channelKey is the caller's voice channel, zero when they are not in one.
func channelKey(sc *command.SlashInteractionContext, voice VoiceLocator) session.ChannelKey {
	guildID := sc.Event.GuildID
	channelID, ok := voice.UserVoiceChannel(guildID, sc.User().ID)
	if !ok {
		return session.ChannelKey{}
	}
	return session.ChannelKey{GuildID: guildID, ChannelID: channelID}
}

func respond(sc *command.SlashInteractionContext, r playback.Reply) error {
	return sc.Responder.Respond(r.Text, r.Ephemeral)
}

// PlayCommand resolves a link or search text and plays or queues it.
type PlayCommand struct {
	Controller Controller
	Voice      VoiceLocator
}

func (c *PlayCommand) Name() string        { return "play" }
func (c *PlayCommand) Description() string { return "Play a song from YouTube" }
func (c *PlayCommand) Group() string       { return group }
func (c *PlayCommand) Category() string    { return category }

func (c *PlayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "YouTube link or song name",
				Required:    true,
			},
		},
	}
}

func (c *PlayCommand) Run(ctx context.Context, sc *command.SlashInteractionContext) error {
	user := sc.User()
	req := playback.Request{
		Key:       channelKey(sc, c.Voice),
		Query:     sc.Option("query"),
		Requester: user.Username,
	}

	// Refusals that need no lookup are answered right away and privately.
	if req.Key.IsZero() || req.Query == "" {
		return respond(sc, c.Controller.Play(ctx, req))
	}

	if err := sc.Responder.Defer(false); err != nil {
		return err
	}
	reply := c.Controller.Play(ctx, req)
	if !reply.Ephemeral {
		return sc.Responder.EditResponse(reply.Text)
	}

	// The deferred answer is public; refusals replace it with a private one.
	if err := sc.Responder.Followup(reply.Text, true); err != nil {
		return err
	}
	if err := sc.Responder.DeleteResponse(); err != nil {
		sc.Log.Warn().Err(err).Msg("could not remove deferred response")
	}
	return nil
}

// ControlCommand is a command that acts on the caller's channel session
// and takes no options.
type ControlCommand struct {
	name        string
	description string
	action      func(c Controller, ctx context.Context, key session.ChannelKey) playback.Reply
	ctrl        Controller
	voice       VoiceLocator
}

func controlCommands(ctrl Controller, voice VoiceLocator) []*ControlCommand {
	return []*ControlCommand{
		{name: "skip", description: "Skip the current song", action: Controller.Skip, ctrl: ctrl, voice: voice},
		{name: "stop", description: "Stop the music and leave the channel", action: Controller.Stop, ctrl: ctrl, voice: voice},
		{name: "queue", description: "Show the queue", action: Controller.Queue, ctrl: ctrl, voice: voice},
		{name: "pause", description: "Pause the music", action: Controller.Pause, ctrl: ctrl, voice: voice},
		{name: "resume", description: "Resume the music", action: Controller.Resume, ctrl: ctrl, voice: voice},
	}
}

func (c *ControlCommand) Name() string        { return c.name }
func (c *ControlCommand) Description() string { return c.description }
func (c *ControlCommand) Group() string       { return group }
func (c *ControlCommand) Category() string    { return category }

func (c *ControlCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.name, Description: c.description}
}

func (c *ControlCommand) Run(ctx context.Context, sc *command.SlashInteractionContext) error {
	return respond(sc, c.action(c.ctrl, ctx, channelKey(sc, c.voice)))
}

type HelpCommand struct {
	Controller Controller
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List the available commands" }
func (c *HelpCommand) Group() string       { return group }
func (c *HelpCommand) Category() string    { return category }

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *HelpCommand) Run(ctx context.Context, sc *command.SlashInteractionContext) error {
	return respond(sc, c.Controller.Help())
}
