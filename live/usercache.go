package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/streamwatch/twitchapi"
)

// DefaultUserCacheTTL bounds how long a login→user mapping is trusted.
const DefaultUserCacheTTL = 24 * time.Hour

// UserCache maps lowercase logins to resolved Helix users across poll cycles.
// Implementations treat backend failures as misses.
type UserCache interface {
	Get(ctx context.Context, login string) (twitchapi.User, bool)
	Put(ctx context.Context, user twitchapi.User)
	Delete(ctx context.Context, login string)
}

type memoryEntry struct {
	user    twitchapi.User
	expires time.Time
}

// MemoryUserCache is an in-process UserCache with a fixed TTL.
type MemoryUserCache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryUserCache creates a cache; a nil clock uses the real clock and ttl<=0 uses DefaultUserCacheTTL.
func NewMemoryUserCache(ttl time.Duration, clock clockwork.Clock) *MemoryUserCache {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryUserCache{ttl: ttl, clock: clock, entries: make(map[string]memoryEntry)}
}

func (c *MemoryUserCache) Get(_ context.Context, login string) (twitchapi.User, bool) {
	key := strings.ToLower(login)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return twitchapi.User{}, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return twitchapi.User{}, false
	}
	return e.user, true
}

func (c *MemoryUserCache) Put(_ context.Context, user twitchapi.User) {
	c.mu.Lock()
	c.entries[strings.ToLower(user.Login)] = memoryEntry{user: user, expires: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryUserCache) Delete(_ context.Context, login string) {
	c.mu.Lock()
	delete(c.entries, strings.ToLower(login))
	c.mu.Unlock()
}

// RedisUserCache stores users as JSON under Prefix+login with a TTL, so several
// replicas (or a restarted process) share resolved ids.
type RedisUserCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func (c *RedisUserCache) key(login string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "streamwatch:user:"
	}
	return prefix + strings.ToLower(login)
}

func (c *RedisUserCache) Get(ctx context.Context, login string) (twitchapi.User, bool) {
	raw, err := c.Client.Get(ctx, c.key(login)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("user cache get failed", slog.String("login", login), slog.Any("err", err), slog.String("component", "user_cache"))
		}
		return twitchapi.User{}, false
	}
	var u twitchapi.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return twitchapi.User{}, false
	}
	return u, true
}

func (c *RedisUserCache) Put(ctx context.Context, user twitchapi.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	if err := c.Client.Set(ctx, c.key(user.Login), raw, ttl).Err(); err != nil {
		slog.Debug("user cache put failed", slog.String("login", user.Login), slog.Any("err", err), slog.String("component", "user_cache"))
	}
}

func (c *RedisUserCache) Delete(ctx context.Context, login string) {
	if err := c.Client.Del(ctx, c.key(login)).Err(); err != nil {
		slog.Debug("user cache delete failed", slog.String("login", login), slog.Any("err", err), slog.String("component", "user_cache"))
	}
}
