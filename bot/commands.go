package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/streamwatch/notify"
	"github.com/onnwee/streamwatch/watchlist"
)

// Commands runs the watchlist commands and renders their replies. The chat bot
// and the Discord slash commands share it.
type Commands struct {
	List    Editor
	Checker Checker
	// Prefix is shown in usage replies: "!" in chat, "/" for slash commands.
	Prefix string
}

func (c *Commands) usage(cmd string) string {
	return fmt.Sprintf("Usage: %s%s <name>", c.Prefix, cmd)
}

// Add puts name on the watchlist and returns the reply.
func (c *Commands) Add(ctx context.Context, log *slog.Logger, name string) string {
	if name == "" {
		return c.usage("addstreamer")
	}
	_, err := c.List.Add(ctx, name)
	switch {
	case err == nil:
		return fmt.Sprintf("Added %s to your watchlist!", name)
	case errors.Is(err, watchlist.ErrAlreadyWatched):
		return fmt.Sprintf("%s is already in your watchlist!", name)
	case errors.Is(err, watchlist.ErrEmptyIdentifier):
		return c.usage("addstreamer")
	default:
		log.Error("add streamer failed", slog.String("name", name), slog.Any("err", err))
		return "There was an error updating the watchlist."
	}
}

// Remove takes name off the watchlist and returns the reply.
func (c *Commands) Remove(ctx context.Context, log *slog.Logger, name string) string {
	if name == "" {
		return c.usage("removestreamer")
	}
	_, err := c.List.Remove(ctx, name)
	switch {
	case err == nil:
		return fmt.Sprintf("Removed %s from your watchlist!", name)
	case errors.Is(err, watchlist.ErrNotWatched):
		return fmt.Sprintf("%s is not in your watchlist!", name)
	case errors.Is(err, watchlist.ErrEmptyIdentifier):
		return c.usage("removestreamer")
	default:
		log.Error("remove streamer failed", slog.String("name", name), slog.Any("err", err))
		return "There was an error updating the watchlist."
	}
}

// Watching lists the watchlist.
func (c *Commands) Watching(ctx context.Context, log *slog.Logger) string {
	logins, err := c.List.All(ctx)
	if err != nil {
		log.Error("list streamers failed", slog.Any("err", err))
		return "There was an error reading the watchlist."
	}
	if len(logins) == 0 {
		return "You are not watching any streamers!"
	}
	return fmt.Sprintf("Watching %d streamers: %s", len(logins), strings.Join(logins, ", "))
}

// Check runs an on-demand check for name. Live streams go to target; the
// returned reply is empty when target already answered.
func (c *Commands) Check(ctx context.Context, log *slog.Logger, name string, target notify.Target) string {
	if name == "" {
		return c.usage("checkstreamer")
	}
	streams, err := c.Checker.CheckNow(ctx, name, target)
	if err != nil {
		var de *notify.DeliveryError
		if errors.As(err, &de) {
			log.Warn("check reply failed", slog.String("name", name), slog.Any("err", err))
			return ""
		}
		log.Error("check streamer failed", slog.String("name", name), slog.Any("err", err))
		return "There was an error checking that streamer."
	}
	if len(streams) == 0 {
		return fmt.Sprintf("%s is not currently live.", name)
	}
	return ""
}
