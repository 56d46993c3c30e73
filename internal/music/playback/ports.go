package playback

import (
	"context"

	"github.com/keshon/jukebox/internal/music/session"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks . Resolver,PermissionChecker,Occupancy

// Resolver turns a user query, either a link or free text, into a
// playable entry.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*session.QueueEntry, error)
}

// PermissionChecker reports whether the bot may join and speak in a channel.
type PermissionChecker interface {
	CanConnectAndSpeak(key session.ChannelKey) (bool, error)
}

// Occupancy reports who is in a voice channel.
type Occupancy interface {
	Members(key session.ChannelKey) (members int, botPresent bool)
}
