package live

import (
	"context"
	"strings"

	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/twitchapi"
)

// Helix is the subset of the Helix API the query engine needs.
type Helix interface {
	GetUsers(ctx context.Context, logins []string) ([]twitchapi.User, error)
	GetStreams(ctx context.Context, userIDs []string) ([]twitchapi.Stream, error)
}

// QueryEngine answers "which of these logins are live right now".
type QueryEngine struct {
	Helix Helix
	Users UserCache // optional
}

// QueryLive returns the live streams among logins, in the order Helix reports them.
// An empty input or a set of logins that resolves to no users returns nil without
// a stream lookup. Any upstream failure fails the whole query.
func (q *QueryEngine) QueryLive(ctx context.Context, logins []string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	users, err := q.resolve(ctx, logins)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	byID := make(map[string]twitchapi.User, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if _, dup := byID[u.ID]; dup {
			continue
		}
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}

	streams, err := q.Helix.GetStreams(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Stream, 0, len(streams))
	for _, s := range streams {
		rec := Stream{
			UserID:       s.UserID,
			UserLogin:    s.UserLogin,
			UserName:     s.UserName,
			Title:        s.Title,
			GameName:     s.GameName,
			ViewerCount:  max(s.ViewerCount, 0),
			StartedAt:    s.StartedAt,
			ThumbnailURL: s.ThumbnailURL,
		}
		if u, ok := byID[s.UserID]; ok {
			rec.ProfileImageURL = u.ProfileImageURL
			if u.DisplayName != "" {
				rec.UserName = u.DisplayName
			}
			if rec.UserLogin == "" {
				rec.UserLogin = u.Login
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// resolve maps logins to users, serving what it can from the cache.
func (q *QueryEngine) resolve(ctx context.Context, logins []string) ([]twitchapi.User, error) {
	if q.Users == nil {
		return q.Helix.GetUsers(ctx, logins)
	}
	users := make([]twitchapi.User, 0, len(logins))
	var missing []string
	for _, l := range logins {
		if u, ok := q.Users.Get(ctx, l); ok {
			telemetry.Inc(telemetry.UserCacheHits)
			users = append(users, u)
			continue
		}
		telemetry.Inc(telemetry.UserCacheMisses)
		missing = append(missing, l)
	}
	if len(missing) == 0 {
		return users, nil
	}

	fetched, err := q.Helix.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(fetched))
	for _, u := range fetched {
		q.Users.Put(ctx, u)
		found[strings.ToLower(u.Login)] = true
		users = append(users, u)
	}
	for _, l := range missing {
		if !found[strings.ToLower(l)] {
			q.Users.Delete(ctx, l)
		}
	}
	return users, nil
}
