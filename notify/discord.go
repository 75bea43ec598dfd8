package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed converts msg into a Discord embed.
func Embed(msg Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: msg.Title, URL: msg.URL, Color: msg.Color}
	if msg.ThumbnailURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: msg.ThumbnailURL}
	}
	if msg.ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: msg.ImageURL}
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

// DiscordWebhook posts messages as embeds to a Discord webhook.
type DiscordWebhook struct {
	session *discordgo.Session
	id      string
	token   string
}

// NewDiscordWebhook parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}. A nil client keeps discordgo's default.
func NewDiscordWebhook(rawURL string, client *http.Client) (*DiscordWebhook, error) {
	id, token, err := parseWebhookURL(rawURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if client != nil {
		s.Client = client
	}
	s.MaxRestRetries = 1
	return &DiscordWebhook{session: s, id: id, token: token}, nil
}

func parseWebhookURL(rawURL string) (id, token string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("discord webhook url must end in /webhooks/{id}/{token}")
}

func (d *DiscordWebhook) Deliver(ctx context.Context, msg Message) error {
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{Embed(msg)}}
	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return &DeliveryError{Target: d.String(), Err: err}
	}
	return nil
}

func (d *DiscordWebhook) String() string { return "discord-webhook" }

// ChannelMessenger posts to a guild channel. *discordgo.Session satisfies it.
type ChannelMessenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordChannel posts embeds to a channel through the bot's own session.
type DiscordChannel struct {
	Session   ChannelMessenger
	ChannelID string
}

func (d *DiscordChannel) Deliver(ctx context.Context, msg Message) error {
	if d.ChannelID == "" {
		return &DeliveryError{Target: d.String(), Err: errNoChannel}
	}
	if _, err := d.Session.ChannelMessageSendEmbed(d.ChannelID, Embed(msg), discordgo.WithContext(ctx)); err != nil {
		return &DeliveryError{Target: d.String(), Err: err}
	}
	return nil
}

func (d *DiscordChannel) String() string { return "discord:" + d.ChannelID }

// InteractionEditor edits the deferred reply of a slash command.
// *discordgo.Session satisfies it.
type InteractionEditor interface {
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordInteraction answers a deferred slash command with the message embed.
type DiscordInteraction struct {
	Session     InteractionEditor
	Interaction *discordgo.Interaction
}

func (d *DiscordInteraction) Deliver(ctx context.Context, msg Message) error {
	embeds := []*discordgo.MessageEmbed{Embed(msg)}
	if _, err := d.Session.InteractionResponseEdit(d.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}, discordgo.WithContext(ctx)); err != nil {
		return &DeliveryError{Target: d.String(), Err: err}
	}
	return nil
}

func (d *DiscordInteraction) String() string { return "discord-interaction" }
