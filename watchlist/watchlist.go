// Package watchlist stores the shared list of Twitch logins to watch.
//
// Logins are canonicalized by Normalize before they are stored or compared,
// so " @Alice " and "alice" are the same entry. Backends only persist a flat
// ordered list; List layers the add/remove/list command semantics on top.
package watchlist

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrEmptyIdentifier = errors.New("streamer name is empty")
	ErrAlreadyWatched  = errors.New("streamer is already on the watchlist")
	ErrNotWatched      = errors.New("streamer is not on the watchlist")
)

// Store persists the watchlist. Save overwrites the stored list wholesale.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, logins []string) error
}

// Normalize trims surrounding whitespace, drops a single leading "@" and lowercases.
// Twitch logins are ASCII, so simple lowercasing is sufficient for comparison.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(strings.TrimSpace(s))
}

// List applies watchlist edits against a Store, serializing read-modify-write
// cycles within the process.
type List struct {
	store Store
	mu    sync.Mutex
}

// NewList wraps store.
func NewList(store Store) *List {
	return &List{store: store}
}

// All returns the current watchlist.
func (l *List) All(ctx context.Context) ([]string, error) {
	return l.store.Load(ctx)
}

// Add appends name and returns its normalized form.
func (l *List) Add(ctx context.Context, name string) (string, error) {
	login := Normalize(name)
	if login == "" {
		return "", ErrEmptyIdentifier
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	logins, err := l.store.Load(ctx)
	if err != nil {
		return login, err
	}
	for _, existing := range logins {
		if Normalize(existing) == login {
			return login, ErrAlreadyWatched
		}
	}
	return login, l.store.Save(ctx, append(logins, login))
}

// Remove deletes name and returns its normalized form.
func (l *List) Remove(ctx context.Context, name string) (string, error) {
	login := Normalize(name)
	if login == "" {
		return "", ErrEmptyIdentifier
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	logins, err := l.store.Load(ctx)
	if err != nil {
		return login, err
	}
	kept := make([]string, 0, len(logins))
	for _, existing := range logins {
		if Normalize(existing) != login {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(logins) {
		return login, ErrNotWatched
	}
	return login, l.store.Save(ctx, kept)
}
