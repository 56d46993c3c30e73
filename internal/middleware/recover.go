package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/pkg/cmd"
)

// WithRecover turns a panicking handler into an error.
func WithRecover(log zerolog.Logger) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("command", c.Name()).Bytes("stack", debug.Stack()).Msgf("panic: %v", r)
					err = fmt.Errorf("command /%s panicked: %v", c.Name(), r)
				}
			}()
			return c.Run(ctx, inv)
		})
	}
}
