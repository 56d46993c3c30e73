package playback

import "github.com/keshon/jukebox/internal/music/session"

// ReplyKind classifies the outcome of a command.
type ReplyKind int

const (
	ReplyNowPlaying ReplyKind = iota
	ReplyQueued
	ReplySkipped
	ReplySkippedLast
	ReplyStopped
	ReplyPaused
	ReplyResumed
	ReplyAlreadyPaused
	ReplyNotPaused
	ReplyNothingPlaying
	ReplyNothingToSkip
	ReplyNoActiveSession
	ReplyNotInVoiceChannel
	ReplyPermissionDenied
	ReplyConnectionFailed
	ReplyResolutionFailed
	ReplyPlaybackFailed
	ReplyMissingQuery
	ReplyQueueView
	ReplyQueueEmpty
	ReplyHelp
	ReplyChannelBusy
)

var replyKindNames = map[ReplyKind]string{
	ReplyNowPlaying:        "now-playing",
	ReplyQueued:            "queued",
	ReplySkipped:           "skipped",
	ReplySkippedLast:       "skipped-last",
	ReplyStopped:           "stopped",
	ReplyPaused:            "paused",
	ReplyResumed:           "resumed",
	ReplyAlreadyPaused:     "already-paused",
	ReplyNotPaused:         "not-paused",
	ReplyNothingPlaying:    "nothing-playing",
	ReplyNothingToSkip:     "nothing-to-skip",
	ReplyNoActiveSession:   "no-active-session",
	ReplyNotInVoiceChannel: "not-in-voice-channel",
	ReplyPermissionDenied:  "permission-denied",
	ReplyConnectionFailed:  "connection-failed",
	ReplyResolutionFailed:  "resolution-failed",
	ReplyPlaybackFailed:    "playback-failed",
	ReplyMissingQuery:      "missing-query",
	ReplyQueueView:         "queue-view",
	ReplyQueueEmpty:        "queue-empty",
	ReplyHelp:              "help",
	ReplyChannelBusy:       "channel-busy",
}

func (k ReplyKind) String() string {
	if name, ok := replyKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Failure reports whether the reply describes a refused or failed command.
func (k ReplyKind) Failure() bool {
	switch k {
	case ReplyNotInVoiceChannel, ReplyPermissionDenied, ReplyConnectionFailed,
		ReplyResolutionFailed, ReplyPlaybackFailed, ReplyMissingQuery,
		ReplyNoActiveSession, ReplyChannelBusy:
		return true
	}
	return false
}

// Reply is the single user-facing answer to a command.
type Reply struct {
	Kind ReplyKind
	Text string
	// Ephemeral replies are shown only to the requesting user.
	Ephemeral bool
	// Entry is the item the reply is about, when there is one.
	Entry *session.QueueEntry
	// Position is the 1-based queue position for ReplyQueued.
	Position int
}
