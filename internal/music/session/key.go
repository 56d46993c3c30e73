package session

// ChannelKey identifies one voice channel. Sessions are keyed by it.
type ChannelKey struct {
	GuildID   string
	ChannelID string
}

// IsZero reports whether the key names no channel, which is what callers
// pass when the requesting user is not in voice.
func (k ChannelKey) IsZero() bool {
	return k.ChannelID == ""
}

func (k ChannelKey) String() string {
	return k.GuildID + "/" + k.ChannelID
}
