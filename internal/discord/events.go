package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/music/session"
)

// onVoiceStateUpdate runs after the state cache has applied the update, so
// occupancy lookups already see the new membership.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, u *discordgo.VoiceStateUpdate) {
	if u.VoiceState == nil {
		return
	}
	if s.State.User != nil && u.UserID == s.State.User.ID {
		b.voice.handleBotVoiceState(u.VoiceState)
	}

	keys := changedChannels(u)
	if len(keys) == 0 {
		return
	}

	b.mu.RLock()
	observe := b.observe
	b.mu.RUnlock()
	if observe != nil {
		observe(keys...)
	}
}

// changedChannels returns the channels whose membership the update touched.
func changedChannels(u *discordgo.VoiceStateUpdate) []session.ChannelKey {
	var keys []session.ChannelKey
	if before := u.BeforeUpdate; before != nil && before.ChannelID != "" && before.ChannelID != u.ChannelID {
		keys = append(keys, session.ChannelKey{GuildID: u.GuildID, ChannelID: before.ChannelID})
	}
	if u.ChannelID != "" {
		keys = append(keys, session.ChannelKey{GuildID: u.GuildID, ChannelID: u.ChannelID})
	}
	return keys
}
