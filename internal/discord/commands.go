package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
)

// registerCommands syncs a guild's slash commands with the registry:
// obsolete ones are deleted and new or changed ones created. Creates are
// throttled by the bot's limiter.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, err := b.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	local := commandDefinitions(b.cmds)

	hashes, err := b.cache.load(guildID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("ignoring command cache")
	}

	for _, rc := range obsoleteCommands(remote, local) {
		b.log.Info().Str("guild", guildID).Str("command", rc.Name).Msg("deleting obsolete command")
		if err := b.dg.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", rc.Name).Msg("delete command failed")
			continue
		}
		delete(hashes, rc.Name)
	}

	changed := changedCommands(remote, local, hashes)
	if len(changed) > 0 {
		b.log.Info().Str("guild", guildID).Int("count", len(changed)).Msg("registering changed commands")
	}
	for _, def := range changed {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", def.Name).Msg("create command failed")
			continue
		}
		hashes[def.Name] = hashCommand(def)
	}

	if err := b.cache.save(guildID, hashes); err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("could not save command cache")
	}
	return nil
}

// commandDefinitions extracts the ApplicationCommand definitions from the
// registry, walking through middleware wrappers via cmd.Root.
func commandDefinitions(reg *cmd.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range reg.GetAll() {
		slash, ok := cmd.Root(c).(command.SlashProvider)
		if !ok {
			continue
		}
		def := slash.SlashDefinition()
		if def == nil {
			continue
		}
		if def.Type == 0 {
			def.Type = discordgo.ChatApplicationCommand
		}
		defs = append(defs, def)
	}
	return defs
}

func obsoleteCommands(remote, local []*discordgo.ApplicationCommand) []*discordgo.ApplicationCommand {
	names := make(map[string]struct{}, len(local))
	for _, d := range local {
		names[d.Name] = struct{}{}
	}
	var out []*discordgo.ApplicationCommand
	for _, rc := range remote {
		if _, ok := names[rc.Name]; !ok {
			out = append(out, rc)
		}
	}
	return out
}

// changedCommands returns the local definitions that are missing remotely
// or whose hash differs from the cached one.
func changedCommands(remote, local []*discordgo.ApplicationCommand, hashes map[string]string) []*discordgo.ApplicationCommand {
	registered := make(map[string]struct{}, len(remote))
	for _, rc := range remote {
		registered[rc.Name] = struct{}{}
	}
	var out []*discordgo.ApplicationCommand
	for _, d := range local {
		_, ok := registered[d.Name]
		if !ok || hashes[d.Name] != hashCommand(d) {
			out = append(out, d)
		}
	}
	return out
}

// appID returns the bot's application ID, fetching it if the state has not
// been filled yet.
func (b *Bot) appID() (string, error) {
	if b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("fetch bot user: %w", err)
	}
	return u.ID, nil
}
