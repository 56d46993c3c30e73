package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/music/session"
)

// voicePermissions are what the bot needs to play in a channel.
const voicePermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak

var errNotLoggedIn = errors.New("bot user not known yet")

// GuildState answers permission and voice occupancy questions from the
// gateway state cache.
type GuildState struct {
	state *discordgo.State
}

func NewGuildState(state *discordgo.State) *GuildState {
	return &GuildState{state: state}
}

func (g *GuildState) botID() string {
	if g.state.User == nil {
		return ""
	}
	return g.state.User.ID
}

// CanConnectAndSpeak reports whether the bot may join and talk in the channel.
func (g *GuildState) CanConnectAndSpeak(key session.ChannelKey) (bool, error) {
	botID := g.botID()
	if botID == "" {
		return false, errNotLoggedIn
	}
	perms, err := g.state.UserChannelPermissions(botID, key.ChannelID)
	if err != nil {
		return false, fmt.Errorf("channel permissions: %w", err)
	}
	return perms&voicePermissions == voicePermissions, nil
}

// Members counts the users in the channel, the bot included, and reports
// whether the bot is one of them.
func (g *GuildState) Members(key session.ChannelKey) (int, bool) {
	guild, err := g.state.Guild(key.GuildID)
	if err != nil {
		return 0, false
	}
	botID := g.botID()

	g.state.RLock()
	defer g.state.RUnlock()

	members, botPresent := 0, false
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != key.ChannelID {
			continue
		}
		members++
		if vs.UserID == botID {
			botPresent = true
		}
	}
	return members, botPresent
}

// UserVoiceChannel returns the voice channel the user is connected to.
func (g *GuildState) UserVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := g.state.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}
