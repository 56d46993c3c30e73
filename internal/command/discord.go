// Package command adapts Discord slash commands to the transport-agnostic
// core in pkg/cmd.
package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/pkg/cmd"
)

// Responder answers an interaction. The Discord runtime provides the real
// implementation so commands never talk to the REST API directly.
type Responder interface {
	Respond(content string, ephemeral bool) error
	// Defer acknowledges the interaction; the answer follows via EditResponse.
	Defer(ephemeral bool) error
	EditResponse(content string) error
	// Followup sends an extra message after the interaction was answered.
	Followup(content string, ephemeral bool) error
	DeleteResponse() error
}

// SlashInteractionContext is what the runtime passes when a slash command runs.
type SlashInteractionContext struct {
	Session   *discordgo.Session
	Event     *discordgo.InteractionCreate
	Responder Responder
	Log       zerolog.Logger
}

// User returns the invoking user, from the member in guilds and the plain
// user in DMs.
func (c *SlashInteractionContext) User() *discordgo.User {
	if c.Event.Member != nil && c.Event.Member.User != nil {
		return c.Event.Member.User
	}
	if c.Event.User != nil {
		return c.Event.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}

// Option returns the string option with the given name, or "".
func (c *SlashInteractionContext) Option(name string) string {
	for _, opt := range c.Event.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// DiscordMeta lets middleware and help read grouping without knowing the
// concrete command type.
type DiscordMeta interface {
	Group() string
	Category() string
}

// DiscordCommand is what individual Discord commands implement.
type DiscordCommand interface {
	Name() string
	Description() string
	Group() string
	Category() string
	Run(ctx context.Context, sc *SlashInteractionContext) error
}

// DiscordAdapter adapts a DiscordCommand to cmd.Command so it can live in
// the universal registry.
type DiscordAdapter struct {
	Cmd DiscordCommand
}

func (a *DiscordAdapter) Name() string        { return a.Cmd.Name() }
func (a *DiscordAdapter) Description() string { return a.Cmd.Description() }
func (a *DiscordAdapter) Group() string       { return a.Cmd.Group() }
func (a *DiscordAdapter) Category() string    { return a.Cmd.Category() }

func (a *DiscordAdapter) Run(ctx context.Context, inv *cmd.Invocation) error {
	sc, ok := inv.Data.(*SlashInteractionContext)
	if !ok {
		return nil
	}
	return a.Cmd.Run(ctx, sc)
}

func (a *DiscordAdapter) SlashDefinition() *discordgo.ApplicationCommand {
	if sp, ok := a.Cmd.(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// RegisterCommand wraps discordCmd with middlewares and adds it to reg.
func RegisterCommand(reg *cmd.Registry, discordCmd DiscordCommand, mws ...cmd.Middleware) {
	reg.Register(cmd.Apply(&DiscordAdapter{Cmd: discordCmd}, mws...))
}
