// Package bot exposes the watchlist commands in Twitch chat.
//
// Commands (prefix "!"):
//
//	!addstreamer <name>     add a login to the watchlist
//	!removestreamer <name>  remove a login from the watchlist
//	!liststreamers          list the watchlist
//	!checkstreamer <name>   check right now whether a login is live
//
// Replies are threaded to the command message. Unknown commands and ordinary
// chat are ignored.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/streamwatch/live"
	"github.com/onnwee/streamwatch/notify"
)

// Editor is the watchlist surface the commands use. *watchlist.List satisfies it.
type Editor interface {
	All(ctx context.Context) ([]string, error)
	Add(ctx context.Context, name string) (string, error)
	Remove(ctx context.Context, name string) (string, error)
}

// Checker runs an on-demand live check. *poller.Service satisfies it.
type Checker interface {
	CheckNow(ctx context.Context, name string, target notify.Target) ([]live.Stream, error)
}

// Incoming is a chat message addressed to the bot.
type Incoming struct {
	Channel   string
	MessageID string
	User      string
	Text      string
	// Privileged is set for the broadcaster and channel moderators.
	Privileged bool
}

// Bot dispatches chat commands.
type Bot struct {
	List    Editor
	Checker Checker
	Chat    notify.ChatSender
	// ModsOnly restricts add/remove to privileged users.
	ModsOnly bool

	checks sync.WaitGroup
}

const prefix = "!"

// Handle runs the command in msg, if any. !checkstreamer runs in the
// background so a slow Helix call does not hold up chat; Wait joins it.
func (b *Bot) Handle(ctx context.Context, msg Incoming) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	log := slog.Default().With(slog.String("component", "bot"), slog.String("channel", msg.Channel), slog.String("cmd", cmd))
	c := &Commands{List: b.List, Checker: b.Checker, Prefix: prefix}
	switch cmd {
	case "addstreamer":
		if b.allowed(msg) {
			b.reply(msg, c.Add(ctx, log, arg))
		}
	case "removestreamer":
		if b.allowed(msg) {
			b.reply(msg, c.Remove(ctx, log, arg))
		}
	case "liststreamers":
		b.reply(msg, c.Watching(ctx, log))
	case "checkstreamer":
		target := &notify.ChatReply{Client: b.Chat, Channel: msg.Channel, ParentID: msg.MessageID}
		b.checks.Add(1)
		go func() {
			defer b.checks.Done()
			b.reply(msg, c.Check(ctx, log, arg, target))
		}()
	}
}

// Wait blocks until in-flight !checkstreamer commands finish.
func (b *Bot) Wait() { b.checks.Wait() }

func (b *Bot) allowed(msg Incoming) bool {
	return !b.ModsOnly || msg.Privileged
}

func (b *Bot) reply(msg Incoming, text string) {
	if text == "" {
		return
	}
	if msg.MessageID == "" {
		b.Chat.Say(msg.Channel, text)
		return
	}
	b.Chat.Reply(msg.Channel, msg.MessageID, text)
}

// FromPrivateMessage converts an IRC message into an Incoming.
func FromPrivateMessage(m twitch.PrivateMessage) Incoming {
	_, broadcaster := m.User.Badges["broadcaster"]
	_, moderator := m.User.Badges["moderator"]
	return Incoming{
		Channel:    m.Channel,
		MessageID:  m.ID,
		User:       m.User.Name,
		Text:       m.Message,
		Privileged: broadcaster || moderator,
	}
}

// Run joins channels and serves commands until ctx is done.
func Run(ctx context.Context, client *twitch.Client, b *Bot, channels []string) error {
	log := slog.Default().With(slog.String("component", "bot"))
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		b.Handle(ctx, FromPrivateMessage(m))
	})
	client.OnConnect(func() {
		log.Info("twitch chat connected", slog.Any("channels", channels))
	})

	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
	}()

	client.Join(channels...)
	err := client.Connect()
	b.Wait()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}
