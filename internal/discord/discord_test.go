package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/music/session"
)

func playDef() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Play a song",
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "link or name", Required: true},
			{Type: discordgo.ApplicationCommandOptionBoolean, Name: "next", Description: "play next"},
		},
	}
}

func TestHashCommand(t *testing.T) {
	a := playDef()
	b := playDef()
	b.ID = "12345"
	b.Version = "2"
	b.Options[0], b.Options[1] = b.Options[1], b.Options[0]
	assert.Equal(t, hashCommand(a), hashCommand(b), "ids and option order must not matter")

	c := playDef()
	c.Options[0].Description = "something else"
	assert.NotEqual(t, hashCommand(a), hashCommand(c))
}

func TestCommandCache(t *testing.T) {
	cache := commandCache{dir: t.TempDir() + "/commands"}

	hashes, err := cache.load("g1")
	require.NoError(t, err)
	assert.Empty(t, hashes)

	require.NoError(t, cache.save("g1", map[string]string{"play": "abc"}))
	hashes, err = cache.load("g1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"play": "abc"}, hashes)
}

func TestCommandSyncSelection(t *testing.T) {
	play := playDef()
	skip := &discordgo.ApplicationCommand{Name: "skip", Description: "Skip", Type: discordgo.ChatApplicationCommand}
	stop := &discordgo.ApplicationCommand{Name: "stop", Description: "Stop", Type: discordgo.ChatApplicationCommand}
	old := &discordgo.ApplicationCommand{ID: "9", Name: "music"}

	remote := []*discordgo.ApplicationCommand{{ID: "1", Name: "play"}, {ID: "2", Name: "skip"}, old}
	local := []*discordgo.ApplicationCommand{play, skip, stop}
	hashes := map[string]string{"play": hashCommand(play), "skip": "outdated", "stop": hashCommand(stop)}

	assert.Equal(t, []*discordgo.ApplicationCommand{old}, obsoleteCommands(remote, local))
	// skip changed, stop is cached but missing remotely.
	assert.Equal(t, []*discordgo.ApplicationCommand{skip, stop}, changedCommands(remote, local, hashes))
}

func TestChangedChannels(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   []session.ChannelKey
	}{
		{"join", "", "vc1", []session.ChannelKey{{GuildID: "g1", ChannelID: "vc1"}}},
		{"leave", "vc1", "", []session.ChannelKey{{GuildID: "g1", ChannelID: "vc1"}}},
		{"move", "vc1", "vc2", []session.ChannelKey{{GuildID: "g1", ChannelID: "vc1"}, {GuildID: "g1", ChannelID: "vc2"}}},
		{"mute", "vc1", "vc1", []session.ChannelKey{{GuildID: "g1", ChannelID: "vc1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: tt.after}}
			if tt.before != "" {
				u.BeforeUpdate = &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: tt.before}
			}
			assert.Equal(t, tt.want, changedChannels(u))
		})
	}
}

func newState(t *testing.T, everyone int64) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	st.User = &discordgo.User{ID: "bot"}
	require.NoError(t, st.GuildAdd(&discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles:   []*discordgo.Role{{ID: "g1", Name: "@everyone", Permissions: everyone}},
		Channels: []*discordgo.Channel{
			{ID: "vc1", GuildID: "g1", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "vc2", GuildID: "g1", Type: discordgo.ChannelTypeGuildVoice},
		},
		Members: []*discordgo.Member{
			{GuildID: "g1", User: &discordgo.User{ID: "bot"}},
			{GuildID: "g1", User: &discordgo.User{ID: "alice"}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "g1", UserID: "bot", ChannelID: "vc1"},
			{GuildID: "g1", UserID: "alice", ChannelID: "vc1"},
			{GuildID: "g1", UserID: "bob", ChannelID: "vc2"},
		},
	}))
	return st
}

func TestGuildStatePermissions(t *testing.T) {
	key := session.ChannelKey{GuildID: "g1", ChannelID: "vc1"}

	ok, err := NewGuildState(newState(t, voicePermissions)).CanConnectAndSpeak(key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewGuildState(newState(t, discordgo.PermissionViewChannel|discordgo.PermissionVoiceConnect)).CanConnectAndSpeak(key)
	require.NoError(t, err)
	assert.False(t, ok, "speak is required")

	_, err = NewGuildState(newState(t, voicePermissions)).CanConnectAndSpeak(session.ChannelKey{GuildID: "g1", ChannelID: "gone"})
	assert.Error(t, err)
}

func TestGuildStateOccupancy(t *testing.T) {
	g := NewGuildState(newState(t, voicePermissions))

	members, bot := g.Members(session.ChannelKey{GuildID: "g1", ChannelID: "vc1"})
	assert.Equal(t, 2, members)
	assert.True(t, bot)

	members, bot = g.Members(session.ChannelKey{GuildID: "g1", ChannelID: "vc2"})
	assert.Equal(t, 1, members)
	assert.False(t, bot)

	members, bot = g.Members(session.ChannelKey{GuildID: "other", ChannelID: "vc1"})
	assert.Zero(t, members)
	assert.False(t, bot)

	ch, ok := g.UserVoiceChannel("g1", "bob")
	assert.True(t, ok)
	assert.Equal(t, "vc2", ch)

	_, ok = g.UserVoiceChannel("g1", "carol")
	assert.False(t, ok)
}

func TestVoiceConnectionLifecycle(t *testing.T) {
	c := NewVoiceConnector(nil, zerolog.Nop())
	key := session.ChannelKey{GuildID: "g1", ChannelID: "vc1"}
	vc := c.track(key)

	// Updates before the join completes belong to the handshake.
	c.handleBotVoiceState(&discordgo.VoiceState{GuildID: "g1", UserID: "bot", ChannelID: ""})
	assert.Empty(t, vc.Events())

	vc.joined(&discordgo.VoiceConnection{}, nil)
	ev := <-vc.Events()
	assert.Equal(t, session.ConnectionReady, ev.Type)

	c.handleBotVoiceState(&discordgo.VoiceState{GuildID: "g1", UserID: "bot", ChannelID: "vc1"})
	assert.Empty(t, vc.Events(), "still in the joined channel")

	c.handleBotVoiceState(&discordgo.VoiceState{GuildID: "g1", UserID: "bot", ChannelID: ""})
	c.handleBotVoiceState(&discordgo.VoiceState{GuildID: "g1", UserID: "bot", ChannelID: "vc2"})
	ev = <-vc.Events()
	assert.Equal(t, session.ConnectionDisconnected, ev.Type)
	assert.ErrorIs(t, ev.Err, errLeftChannel)
	assert.Empty(t, vc.Events(), "disconnect is reported once")
}

func TestVoiceJoinFailure(t *testing.T) {
	c := NewVoiceConnector(nil, zerolog.Nop())
	vc := c.track(session.ChannelKey{GuildID: "g1", ChannelID: "vc1"})

	vc.joined(nil, assert.AnError)
	ev := <-vc.Events()
	assert.Equal(t, session.ConnectionDisconnected, ev.Type)
	assert.ErrorIs(t, ev.Err, assert.AnError)
}

func TestVoiceDestroyBeforeJoin(t *testing.T) {
	c := NewVoiceConnector(nil, zerolog.Nop())
	vc := c.track(session.ChannelKey{GuildID: "g1", ChannelID: "vc1"})

	vc.Destroy()
	vc.Destroy()
	c.mu.Lock()
	assert.Empty(t, c.conns)
	c.mu.Unlock()

	vc.joined(nil, assert.AnError)
	assert.Empty(t, vc.Events(), "an abandoned join reports nothing")
}
