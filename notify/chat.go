package notify

import (
	"context"
	"errors"
	"sync"
)

// ChatSender is the part of a Twitch IRC client used for delivery.
// *twitch.Client from go-twitch-irc satisfies it.
type ChatSender interface {
	Say(channel, text string)
	Reply(channel, parentMsgID, text string)
}

var errNoChannel = errors.New("no channel configured")

// ChatChannel posts notifications into a Twitch chat channel.
type ChatChannel struct {
	Client  ChatSender
	Channel string
}

func (c *ChatChannel) Deliver(ctx context.Context, msg Message) error {
	if c.Channel == "" || c.Client == nil {
		return &DeliveryError{Target: c.String(), Err: errNoChannel}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Target: c.String(), Err: err}
	}
	c.Client.Say(c.Channel, msg.Text())
	return nil
}

func (c *ChatChannel) String() string { return "chat:#" + c.Channel }

// ChatReply answers the chat message that triggered an on-demand check.
type ChatReply struct {
	Client   ChatSender
	Channel  string
	ParentID string
}

func (c *ChatReply) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Target: c.String(), Err: err}
	}
	if c.ParentID == "" {
		c.Client.Say(c.Channel, msg.Text())
		return nil
	}
	c.Client.Reply(c.Channel, c.ParentID, msg.Text())
	return nil
}

func (c *ChatReply) String() string { return "chat-reply:#" + c.Channel }

// Collector keeps delivered messages in memory. The HTTP check endpoint uses it
// to return rendered notifications in its response.
type Collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *Collector) Deliver(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *Collector) String() string { return "collector" }

// Messages returns a copy of everything delivered so far.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}
