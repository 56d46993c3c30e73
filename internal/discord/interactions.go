package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

const EmbedColor = 0xb01e66

// interactionResponder implements command.Responder for one interaction.
// Replies are sent as embeds.
type interactionResponder struct {
	s *discordgo.Session
	i *discordgo.InteractionCreate

	mu    sync.Mutex
	acked bool
}

func embed(content string) []*discordgo.MessageEmbed {
	return []*discordgo.MessageEmbed{{Description: content, Color: EmbedColor}}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *interactionResponder) Respond(content string, ephemeral bool) error {
	err := r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: embed(content),
			Flags:  flags(ephemeral),
		},
	})
	if err == nil {
		r.setAcked()
	}
	return err
}

func (r *interactionResponder) Defer(ephemeral bool) error {
	err := r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
	if err == nil {
		r.setAcked()
	}
	return err
}

func (r *interactionResponder) EditResponse(content string) error {
	embeds := embed(content)
	_, err := r.s.InteractionResponseEdit(r.i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds})
	return err
}

// fail tells the user a command broke, as a follow-up when the interaction
// was already answered.
func (r *interactionResponder) fail(content string) error {
	r.mu.Lock()
	acked := r.acked
	r.mu.Unlock()

	if !acked {
		return r.Respond(content, true)
	}
	return r.Followup(content, true)
}

func (r *interactionResponder) Followup(content string, ephemeral bool) error {
	_, err := r.s.FollowupMessageCreate(r.i.Interaction, true, &discordgo.WebhookParams{
		Embeds: embed(content),
		Flags:  flags(ephemeral),
	})
	return err
}

func (r *interactionResponder) DeleteResponse() error {
	return r.s.InteractionResponseDelete(r.i.Interaction)
}

func (r *interactionResponder) setAcked() {
	r.mu.Lock()
	r.acked = true
	r.mu.Unlock()
}
