package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
)

// WithCommandLogger logs every execution with its caller and duration.
func WithCommandLogger(log zerolog.Logger) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			ev := log.Info()
			if err != nil {
				ev = log.Error().Err(err)
			}
			if v, ok := inv.Data.(*command.SlashInteractionContext); ok {
				user := v.User()
				ev = ev.Str("guild", v.Event.GuildID).
					Str("channel", v.Event.ChannelID).
					Str("user", user.Username).
					Str("user_id", user.ID)
			}
			ev.Str("command", c.Name()).Dur("took", time.Since(start)).Msg("command executed")
			return err
		})
	}
}
