// Package playback turns user commands into session transitions and
// produces exactly one reply per command.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
)

// maxQueueLines caps how many upcoming entries the queue view lists.
const maxQueueLines = 10

// Request is a play command.
type Request struct {
	Key       session.ChannelKey
	Query     string
	Requester string
}

type Options struct {
	Registry    *session.Registry
	Resolver    Resolver
	Permissions PermissionChecker
	Factory     session.Factory
	// Joined is called with the key of every session Play creates, so
	// occupancy changes missed while connecting can be checked.
	Joined func(keys ...session.ChannelKey)
	Logger zerolog.Logger
}

// Controller serves play, skip, stop, queue, pause, resume and help.
type Controller struct {
	registry *session.Registry
	resolver Resolver
	perms    PermissionChecker
	factory  session.Factory
	joined   func(keys ...session.ChannelKey)
	log      zerolog.Logger
}

func NewController(opts Options) *Controller {
	return &Controller{
		registry: opts.Registry,
		resolver: opts.Resolver,
		perms:    opts.Permissions,
		factory:  opts.Factory,
		joined:   opts.Joined,
		log:      opts.Logger,
	}
}

// Play resolves the query and plays it, creating the channel's session if
// needed. Permissions are checked before any connection is attempted.
func (c *Controller) Play(ctx context.Context, req Request) Reply {
	if req.Key.IsZero() {
		return notInVoice()
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Reply{Kind: ReplyMissingQuery, Text: "Tell me what to play: a YouTube link or a song name.", Ephemeral: true}
	}
	if other, ok := c.registry.InGuild(req.Key.GuildID); ok && other != req.Key {
		return channelBusy(other)
	}

	log := c.log.With().Str("guild", req.Key.GuildID).Str("channel", req.Key.ChannelID).Logger()

	allowed, err := c.perms.CanConnectAndSpeak(req.Key)
	if err != nil {
		log.Warn().Err(err).Msg("permission lookup failed")
	}
	if !allowed {
		return Reply{
			Kind:      ReplyPermissionDenied,
			Text:      "I need permission to connect and speak in your voice channel.",
			Ephemeral: true,
		}
	}

	entry, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		log.Info().Err(err).Str("query", query).Msg("resolution failed")
		return Reply{
			Kind:      ReplyResolutionFailed,
			Text:      fmt.Sprintf("Couldn't find anything for **%s**.", query),
			Ephemeral: true,
		}
	}
	entry.RequestedBy = req.Requester

	// A stop can land between lookup and enqueue; the retry builds a new
	// session in that case.
	for range 2 {
		s, created, err := c.registry.GetOrCreate(ctx, req.Key, c.factory)
		if errors.Is(err, session.ErrChannelBusy) {
			if other, ok := c.registry.InGuild(req.Key.GuildID); ok {
				return channelBusy(other)
			}
			return channelBusy(session.ChannelKey{})
		}
		if err != nil {
			log.Warn().Err(err).Msg("could not open session")
			return Reply{
				Kind:      ReplyConnectionFailed,
				Text:      "I couldn't connect to your voice channel. Try again in a moment.",
				Ephemeral: true,
			}
		}

		if created && c.joined != nil {
			c.joined(req.Key)
		}

		res, err := s.Enqueue(entry)
		switch {
		case errors.Is(err, session.ErrSessionClosed):
			continue
		case errors.Is(err, session.ErrStreamFailure):
			return Reply{
				Kind:      ReplyPlaybackFailed,
				Text:      fmt.Sprintf("Couldn't start **%s**.", entry.Title),
				Ephemeral: true,
				Entry:     entry,
			}
		case err != nil:
			log.Error().Err(err).Msg("enqueue failed")
			return Reply{Kind: ReplyPlaybackFailed, Text: "Couldn't queue that.", Ephemeral: true, Entry: entry}
		case res.Started:
			return Reply{
				Kind:  ReplyNowPlaying,
				Text:  fmt.Sprintf("🎶 Now playing: **%s** (%s)", res.Entry.Title, res.Entry.DisplayDuration()),
				Entry: res.Entry,
			}
		default:
			return Reply{
				Kind:     ReplyQueued,
				Text:     fmt.Sprintf("➕ Queued **%s** at position %d.", res.Entry.Title, res.Position),
				Entry:    res.Entry,
				Position: res.Position,
			}
		}
	}

	return Reply{
		Kind:      ReplyConnectionFailed,
		Text:      "The voice session closed while queueing. Try again.",
		Ephemeral: true,
	}
}

// Skip stops the current entry; the queue advances when the player reports
// the stream ended.
func (c *Controller) Skip(ctx context.Context, key session.ChannelKey) Reply {
	s, reply, ok := c.lookup(key)
	if !ok {
		return reply
	}
	res, err := s.Skip()
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		return noSession()
	case errors.Is(err, session.ErrNothingPlaying):
		return Reply{Kind: ReplyNothingToSkip, Text: "There's nothing to skip.", Ephemeral: true}
	case err != nil:
		c.log.Error().Err(err).Msg("skip failed")
		return noSession()
	}

	if res.Next == nil {
		return Reply{
			Kind:  ReplySkippedLast,
			Text:  fmt.Sprintf("⏭️ Skipped **%s**. No more songs in the queue.", res.Skipped.Title),
			Entry: res.Skipped,
		}
	}
	return Reply{
		Kind:  ReplySkipped,
		Text:  fmt.Sprintf("⏭️ Skipped **%s**. Up next: **%s**", res.Skipped.Title, res.Next.Title),
		Entry: res.Skipped,
	}
}

// Stop clears the queue and leaves the channel.
func (c *Controller) Stop(ctx context.Context, key session.ChannelKey) Reply {
	s, reply, ok := c.lookup(key)
	if !ok {
		return reply
	}
	if !s.Close(session.ReasonStopped) {
		return noSession()
	}
	return Reply{Kind: ReplyStopped, Text: "⏹️ Stopped playback and cleared the queue."}
}

// Queue shows the current entry and what is coming up.
func (c *Controller) Queue(ctx context.Context, key session.ChannelKey) Reply {
	if key.IsZero() {
		return notInVoice()
	}
	empty := Reply{Kind: ReplyQueueEmpty, Text: "The queue is empty.", Ephemeral: true}
	s, ok := c.registry.Get(key)
	if !ok {
		return empty
	}
	snap := s.Snapshot()
	if snap.Current == nil && len(snap.Queue) == 0 {
		return empty
	}
	return Reply{Kind: ReplyQueueView, Text: formatQueue(snap), Entry: snap.Current}
}

func (c *Controller) Pause(ctx context.Context, key session.ChannelKey) Reply {
	s, reply, ok := c.lookup(key)
	if !ok {
		return reply
	}
	changed, err := s.Pause()
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		return noSession()
	case err != nil:
		return nothingPlaying()
	case !changed:
		return Reply{Kind: ReplyAlreadyPaused, Text: "Playback is already paused.", Ephemeral: true}
	}
	return Reply{Kind: ReplyPaused, Text: "⏸️ Paused."}
}

func (c *Controller) Resume(ctx context.Context, key session.ChannelKey) Reply {
	s, reply, ok := c.lookup(key)
	if !ok {
		return reply
	}
	changed, err := s.Resume()
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		return noSession()
	case err != nil:
		return nothingPlaying()
	case !changed:
		return Reply{Kind: ReplyNotPaused, Text: "Playback isn't paused.", Ephemeral: true}
	}
	return Reply{Kind: ReplyResumed, Text: "▶️ Resumed."}
}

// Help lists the available commands.
func (c *Controller) Help() Reply {
	var sb strings.Builder
	sb.WriteString("**Music commands**\n")
	for _, h := range helpLines {
		fmt.Fprintf(&sb, "`/%s` %s\n", h[0], h[1])
	}
	return Reply{Kind: ReplyHelp, Text: strings.TrimRight(sb.String(), "\n"), Ephemeral: true}
}

// Shutdown tears down every session.
func (c *Controller) Shutdown() {
	c.registry.CloseAll(session.ReasonShutdown)
}

var helpLines = [][2]string{
	{"play <link or search>", "play a YouTube link or the first search result, or add it to the queue"},
	{"skip", "skip the current song"},
	{"stop", "stop playback, clear the queue and leave the channel"},
	{"queue", "show the current song and what's next"},
	{"pause", "pause playback"},
	{"resume", "resume paused playback"},
	{"help", "show this message"},
}

func (c *Controller) lookup(key session.ChannelKey) (*session.Session, Reply, bool) {
	if key.IsZero() {
		return nil, notInVoice(), false
	}
	s, ok := c.registry.Get(key)
	if !ok || s.Closed() {
		return nil, noSession(), false
	}
	return s, Reply{}, true
}

func formatQueue(snap session.Snapshot) string {
	var sb strings.Builder
	if snap.Current != nil {
		label := "Now playing"
		if snap.State == session.StatePaused {
			label = "Paused"
		}
		fmt.Fprintf(&sb, "**%s:** %s (%s)\n", label, snap.Current.Title, snap.Current.DisplayDuration())
	}
	if len(snap.Queue) == 0 {
		sb.WriteString("Nothing else queued.")
		return sb.String()
	}

	sb.WriteString("\n**Up next:**\n")
	for i, e := range snap.Queue {
		if i == maxQueueLines {
			fmt.Fprintf(&sb, "…and %d more", len(snap.Queue)-maxQueueLines)
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, e.Title, e.DisplayDuration())
		if e.RequestedBy != "" {
			fmt.Fprintf(&sb, " · %s", e.RequestedBy)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func notInVoice() Reply {
	return Reply{Kind: ReplyNotInVoiceChannel, Text: "Join a voice channel first.", Ephemeral: true}
}

func noSession() Reply {
	return Reply{Kind: ReplyNoActiveSession, Text: "Nothing is playing in your voice channel.", Ephemeral: true}
}

func nothingPlaying() Reply {
	return Reply{Kind: ReplyNothingPlaying, Text: "Nothing is playing right now.", Ephemeral: true}
}

func channelBusy(other session.ChannelKey) Reply {
	text := "I'm already playing in another voice channel of this server."
	if other.ChannelID != "" {
		text = fmt.Sprintf("I'm already playing in <#%s>. Join me there or `/stop` first.", other.ChannelID)
	}
	return Reply{Kind: ReplyChannelBusy, Text: text, Ephemeral: true}
}
