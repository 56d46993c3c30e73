package session

import "errors"

var (
	ErrNotInVoiceChannel = errors.New("user is not in a voice channel")
	ErrPermissionDenied  = errors.New("missing connect or speak permission")
	ErrConnectionTimeout = errors.New("voice connection did not become ready in time")
	ErrResolutionFailed  = errors.New("could not resolve query to a playable item")
	ErrStreamFailure     = errors.New("audio stream failed")
	ErrInvalidForState   = errors.New("command not valid in current state")
	ErrNoActiveSession   = errors.New("no active session for this channel")
	ErrSessionClosed     = errors.New("session is closed")
	ErrChannelBusy       = errors.New("already playing in another channel of this guild")
)

// ErrNothingPlaying is returned by Skip, Pause and Resume when the current
// slot is empty.
var ErrNothingPlaying = errInvalid("nothing is playing")

// ErrDuplicateEntry is returned when an entry already in the session is
// enqueued again.
var ErrDuplicateEntry = errInvalid("entry is already queued")

type invalidStateError struct{ msg string }

func errInvalid(msg string) error { return &invalidStateError{msg: msg} }

func (e *invalidStateError) Error() string { return e.msg }

func (e *invalidStateError) Is(target error) bool { return target == ErrInvalidForState }
