package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/streamwatch/telemetry"
)

// DefaultTokenURL is the Twitch OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// refreshTimeout bounds a token request that no caller can cancel.
const refreshTimeout = 30 * time.Second

// ExpiryMargin is shaved off the lifetime Twitch reports before a token is cached.
const ExpiryMargin = 60 * time.Second

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// A cached token is served without network traffic until it expires; concurrent
// callers that find it expired share a single refresh.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	TokenURL     string          // defaults to DefaultTokenURL
	Clock        clockwork.Clock // defaults to the real clock

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	flight    singleflight.Group
}

func (ts *TokenSource) clock() clockwork.Clock {
	if ts.Clock != nil {
		return ts.Clock
	}
	return clockwork.NewRealClock()
}

// Get returns a valid (fresh or cached) app access token.
//
// The shared refresh is detached from the caller that started it, so one
// caller giving up does not fail the others waiting on it; each caller stops
// waiting when its own ctx is done.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := ts.flight.DoChan("token", func() (interface{}, error) {
		if tok, ok := ts.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(detached, refreshTimeout)
		defer cancel()
		return ts.refresh(rctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ExpiresAt returns the instant the cached token stops being served (zero if none).
func (ts *TokenSource) ExpiresAt() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.expiresAt
}

// Invalidate drops the cached token so the next Get performs a refresh.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

func (ts *TokenSource) cached() (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.token != "" && ts.clock().Now().Before(ts.expiresAt) {
		return ts.token, true
	}
	return "", false
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", &CredentialError{Err: ErrMissingCredentials}
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}

	fetchedAt := ts.clock().Now()
	telemetry.Inc(telemetry.TokenRefreshes)
	tok, err := cfg.Token(ctx)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return "", &CredentialError{StatusCode: rerr.Response.StatusCode, Err: err}
		}
		return "", &CredentialError{Err: err}
	}
	if tok.AccessToken == "" {
		return "", &CredentialError{Err: errors.New("empty access_token in twitch response")}
	}

	ts.mu.Lock()
	ts.token = tok.AccessToken
	ts.expiresAt = fetchedAt.Add(lifetime(tok) - ExpiryMargin)
	ts.mu.Unlock()
	return tok.AccessToken, nil
}

// lifetime reads expires_in from the raw token response. Twitch always sends it;
// when absent we assume an hour.
func lifetime(tok *oauth2.Token) time.Duration {
	var secs int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case json.Number:
		secs, _ = v.Int64()
	case string:
		secs, _ = strconv.ParseInt(v, 10, 64)
	}
	if secs <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(secs) * time.Second
}
