// Package discord serves the watchlist commands as Discord slash commands.
//
// /checkstreamer is deferred and answered with the stream embed once the
// Helix check returns; the other commands reply immediately.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/bot"
	"github.com/onnwee/streamwatch/notify"
)

// Session is the part of *discordgo.Session the handler replies through.
type Session interface {
	notify.InteractionEditor
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

func nameOption(description string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "name",
		Description: description,
		Required:    true,
	}}
}

// Commands are registered with Discord on startup.
var Commands = []*discordgo.ApplicationCommand{
	{Name: "addstreamer", Description: "Add a Twitch streamer to your watchlist", Options: nameOption("The Twitch username of the streamer")},
	{Name: "removestreamer", Description: "Remove a Twitch streamer from your watchlist", Options: nameOption("The Twitch username of the streamer")},
	{Name: "liststreamers", Description: "List all the streamers in your watchlist"},
	{Name: "checkstreamer", Description: "Check if a specific streamer is currently live", Options: nameOption("The Twitch username of the streamer")},
}

// Handler answers slash command interactions.
type Handler struct {
	List    bot.Editor
	Checker bot.Checker
	Session Session

	checks sync.WaitGroup
}

// Handle answers one interaction. Non-command interactions are ignored.
func (h *Handler) Handle(ctx context.Context, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	name := stringOption(data.Options, "name")
	log := slog.Default().With(slog.String("component", "discord"), slog.String("cmd", data.Name))
	c := &bot.Commands{List: h.List, Checker: h.Checker, Prefix: "/"}

	switch data.Name {
	case "addstreamer":
		h.respond(log, i, c.Add(ctx, log, name))
	case "removestreamer":
		h.respond(log, i, c.Remove(ctx, log, name))
	case "liststreamers":
		h.respond(log, i, c.Watching(ctx, log))
	case "checkstreamer":
		err := h.Session.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}, discordgo.WithContext(ctx))
		if err != nil {
			log.Warn("defer reply failed", slog.Any("err", err))
			return
		}
		target := &notify.DiscordInteraction{Session: h.Session, Interaction: i}
		h.checks.Add(1)
		go func() {
			defer h.checks.Done()
			if text := c.Check(ctx, log, name, target); text != "" {
				h.edit(log, i, text)
			}
		}()
	default:
		log.Debug("unknown command")
	}
}

// Wait blocks until in-flight /checkstreamer commands finish.
func (h *Handler) Wait() { h.checks.Wait() }

func (h *Handler) respond(log *slog.Logger, i *discordgo.Interaction, text string) {
	err := h.Session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text},
	})
	if err != nil {
		log.Warn("interaction reply failed", slog.Any("err", err))
	}
}

func (h *Handler) edit(log *slog.Logger, i *discordgo.Interaction, text string) {
	if _, err := h.Session.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &text}); err != nil {
		log.Warn("interaction edit failed", slog.Any("err", err))
	}
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o != nil && o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

// Run opens the gateway, registers Commands in guildID (global when empty)
// and serves interactions until ctx is done.
func Run(ctx context.Context, s *discordgo.Session, h *Handler, guildID string) error {
	log := slog.Default().With(slog.String("component", "discord"))
	s.Identify.Intents = discordgo.IntentsGuilds
	s.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		h.Handle(ctx, ic.Interaction)
	})
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands); err != nil {
		_ = s.Close()
		return fmt.Errorf("register slash commands: %w", err)
	}
	log.Info("discord connected", slog.String("user", s.State.User.Username), slog.Int("commands", len(Commands)))

	<-ctx.Done()
	h.Wait()
	return s.Close()
}
