package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Target delivers a rendered message somewhere.
//
// Scheduled notifications go to a channel target (DiscordWebhook,
// DiscordChannel, ChatChannel, Multi); on-demand checks answer through an
// interaction target (ChatReply, DiscordInteraction) or a Collector. The caller
// decides which one applies.
type Target interface {
	Deliver(ctx context.Context, msg Message) error
	String() string
}

// DeliveryError wraps a transport failure for one target.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func deliveryErr(t Target, err error) error {
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Target: t.String(), Err: err}
}

// Multi fans a message out to every target. All targets are attempted; the
// failures are joined.
type Multi []Target

func (m Multi) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, t := range m {
		if err := t.Deliver(ctx, msg); err != nil {
			errs = append(errs, deliveryErr(t, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) String() string { return fmt.Sprintf("multi(%d)", len(m)) }

// Log writes notifications to the default logger. It is the fallback channel
// target when no transport is configured.
type Log struct{}

func (Log) Deliver(_ context.Context, msg Message) error {
	slog.Info("live notification", slog.String("component", "notify"), slog.String("title", msg.Title), slog.String("url", msg.URL))
	return nil
}

func (Log) String() string { return "log" }
