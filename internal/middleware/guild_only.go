// Package middleware holds cmd.Middleware implementations shared by the
// Discord commands.
package middleware

import (
	"context"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
)

// WithGuildOnly refuses commands invoked outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if v, ok := inv.Data.(*command.SlashInteractionContext); ok && v.Event.GuildID == "" {
				return v.Responder.Respond("This command only works in a server.", true)
			}
			return c.Run(ctx, inv)
		})
	}
}
