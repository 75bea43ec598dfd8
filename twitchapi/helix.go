// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for login resolution and live-stream lookups, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/streamwatch/telemetry"
)

// DefaultHelixURL is the Helix API root.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// MaxBatchSize is the largest number of login or user_id values Helix accepts per request.
const MaxBatchSize = 100

// User is a Helix user record.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Stream is a Helix "stream is live" record.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// HelixClient provides the batched lookups needed for live checks.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // defaults to DefaultHelixURL
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// GetUsers resolves login names to user records. Logins that do not exist are
// silently absent from the result. Inputs above MaxBatchSize are split into
// concurrent requests whose results are concatenated in input order.
func (hc *HelixClient) GetUsers(ctx context.Context, logins []string) ([]User, error) {
	return fetchChunked(ctx, logins, func(ctx context.Context, chunk []string) ([]User, error) {
		q := url.Values{}
		for _, l := range chunk {
			q.Add("login", l)
		}
		var body struct {
			Data []User `json:"data"`
		}
		if err := hc.get(ctx, "users", q, &body); err != nil {
			return nil, err
		}
		return body.Data, nil
	})
}

// GetStreams returns the live streams for the given user ids. Offline users are absent.
func (hc *HelixClient) GetStreams(ctx context.Context, userIDs []string) ([]Stream, error) {
	return fetchChunked(ctx, userIDs, func(ctx context.Context, chunk []string) ([]Stream, error) {
		q := url.Values{}
		for _, id := range chunk {
			q.Add("user_id", id)
		}
		q.Set("first", fmt.Sprintf("%d", MaxBatchSize))
		var body struct {
			Data []Stream `json:"data"`
		}
		if err := hc.get(ctx, "streams", q, &body); err != nil {
			return nil, err
		}
		return body.Data, nil
	})
}

// fetchChunked splits keys into MaxBatchSize chunks, runs fn for each concurrently
// and concatenates the results in chunk order. The first error cancels the rest.
func fetchChunked[T any](ctx context.Context, keys []string, fn func(context.Context, []string) ([]T, error)) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var chunks [][]string
	for start := 0; start < len(keys); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	results := make([][]T, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := fn(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (hc *HelixClient) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/"+endpoint, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	start := time.Now()
	resp, err := hc.http().Do(req)
	telemetry.ObserveUpstream(endpoint, time.Since(start))
	if err != nil {
		return fmt.Errorf("helix %s: %w", endpoint, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		// Revoked or rotated app token; the next cycle fetches a new one.
		hc.AppTokenSource.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode helix %s response: %w", endpoint, err)
	}
	return nil
}
