// Package testutil provides shared fakes for tests that exercise the Twitch
// pipeline over real HTTP.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeUser is a Helix user known to the fake server.
type FakeUser struct {
	ID          string
	Login       string
	DisplayName string
}

// FakeTwitch serves the client-credentials token endpoint and the Helix users
// and streams endpoints from in-memory state.
type FakeTwitch struct {
	*httptest.Server

	mu            sync.Mutex
	users         map[string]FakeUser // by lowercase login
	live          map[string]string   // user id -> stream title
	tokenCalls    int
	userCalls     int
	streamCalls   int
	userBatches   []int
	streamBatches []int
	fail          map[string]int // path -> status to return
}

// NewFakeTwitch starts a fake Twitch server that is closed when the test ends.
func NewFakeTwitch(t *testing.T) *FakeTwitch {
	t.Helper()
	f := &FakeTwitch{
		users: make(map[string]FakeUser),
		live:  make(map[string]string),
		fail:  make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", f.handleToken)
	mux.HandleFunc("/helix/users", f.handleUsers)
	mux.HandleFunc("/helix/streams", f.handleStreams)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// TokenURL is the client-credentials endpoint.
func (f *FakeTwitch) TokenURL() string { return f.URL + "/oauth2/token" }

// HelixURL is the Helix API root.
func (f *FakeTwitch) HelixURL() string { return f.URL + "/helix" }

// AddUser registers a user that /helix/users can resolve.
func (f *FakeTwitch) AddUser(id, login, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(login)] = FakeUser{ID: id, Login: strings.ToLower(login), DisplayName: displayName}
}

// SetLive marks a user id live with title, or offline when title is empty.
func (f *FakeTwitch) SetLive(userID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if title == "" {
		delete(f.live, userID)
		return
	}
	f.live[userID] = title
}

// FailWith makes path respond with status until cleared with status 0.
func (f *FakeTwitch) FailWith(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.fail, path)
		return
	}
	f.fail[path] = status
}

// Calls returns how many token, users and streams requests were served.
func (f *FakeTwitch) Calls() (token, users, streams int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.userCalls, f.streamCalls
}

// Batches returns the number of values each users and streams request carried, in arrival order.
func (f *FakeTwitch) Batches() (users, streams []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.userBatches...), append([]int(nil), f.streamBatches...)
}

func (f *FakeTwitch) failing(w http.ResponseWriter, r *http.Request) bool {
	if status, ok := f.fail[r.URL.Path]; ok {
		http.Error(w, `{"error":"fake failure"}`, status)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

func (f *FakeTwitch) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.failing(w, r) {
		return
	}
	writeJSON(w, map[string]any{
		"access_token": "app-token",
		"expires_in":   3600,
		"token_type":   "bearer",
	})
}

func (f *FakeTwitch) handleUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.userBatches = append(f.userBatches, len(r.URL.Query()["login"]))
	if f.failing(w, r) {
		return
	}
	data := []map[string]string{}
	for _, login := range r.URL.Query()["login"] {
		if u, ok := f.users[strings.ToLower(login)]; ok {
			data = append(data, map[string]string{
				"id":                u.ID,
				"login":             u.Login,
				"display_name":      u.DisplayName,
				"profile_image_url": "https://static.example/" + u.Login + ".png",
			})
		}
	}
	writeJSON(w, map[string]any{"data": data})
}

func (f *FakeTwitch) handleStreams(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++
	f.streamBatches = append(f.streamBatches, len(r.URL.Query()["user_id"]))
	if f.failing(w, r) {
		return
	}
	byID := make(map[string]FakeUser, len(f.users))
	for _, u := range f.users {
		byID[u.ID] = u
	}
	data := []map[string]any{}
	for _, id := range r.URL.Query()["user_id"] {
		title, ok := f.live[id]
		if !ok {
			continue
		}
		u := byID[id]
		data = append(data, map[string]any{
			"id":            "s" + id,
			"user_id":       id,
			"user_login":    u.Login,
			"user_name":     u.DisplayName,
			"game_name":     "Just Chatting",
			"type":          "live",
			"title":         title,
			"viewer_count":  7,
			"started_at":    time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"thumbnail_url": "https://static.example/live_" + u.Login + "-{width}x{height}.jpg",
		})
	}
	writeJSON(w, map[string]any{"data": data})
}
