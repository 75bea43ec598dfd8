package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/streamwatch/live"
	"github.com/onnwee/streamwatch/notify"
	"github.com/onnwee/streamwatch/poller"
	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/watchlist"
)

// Watchlist is the watchlist surface the API edits. *watchlist.List satisfies it.
type Watchlist interface {
	All(ctx context.Context) ([]string, error)
	Add(ctx context.Context, name string) (string, error)
	Remove(ctx context.Context, name string) (string, error)
}

// Poller is the poll service surface the API reads. *poller.Service satisfies it.
type Poller interface {
	Status() poller.Status
	Live() []live.Stream
	CheckNow(ctx context.Context, name string, target notify.Target) ([]live.Stream, error)
}

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	watchlist Watchlist
	poller    Poller
	checks    []ReadyCheck
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(wl Watchlist, p Poller, checks ...ReadyCheck) *Handlers {
	return &Handlers{watchlist: wl, poller: p, checks: checks}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz loads the watchlist and runs the configured dependency checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := append([]ReadyCheck{{Name: "watchlist", Fn: func(ctx context.Context) error {
		_, err := h.watchlist.All(ctx)
		return err
	}}}, h.checks...)

	for _, check := range checks {
		if err := check.Fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Poll poller.Status `json:"poll"`
	Live []live.Stream `json:"live"`
}

// HandleStatus reports the last poll cycle and who is currently live.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Poll: h.poller.Status(), Live: h.poller.Live()})
}

// HandleWatchlist lists (GET), adds (POST {"name": ...}) or removes (DELETE ?name=) streamers.
func (h *Handlers) HandleWatchlist(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
	switch r.Method {
	case http.MethodGet:
		logins, err := h.watchlist.All(r.Context())
		if err != nil {
			log.Error("list watchlist failed", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "failed to load watchlist")
			return
		}
		if logins == nil {
			logins = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"streamers": logins, "count": len(logins)})

	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		login, err := h.watchlist.Add(r.Context(), body.Name)
		if err != nil {
			h.writeWatchlistError(w, log, err)
			return
		}
		log.Info("streamer added", slog.String("login", login))
		writeJSON(w, http.StatusCreated, map[string]string{"login": login})

	case http.MethodDelete:
		login, err := h.watchlist.Remove(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			h.writeWatchlistError(w, log, err)
			return
		}
		log.Info("streamer removed", slog.String("login", login))
		writeJSON(w, http.StatusOK, map[string]string{"login": login})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) writeWatchlistError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, watchlist.ErrEmptyIdentifier):
		writeError(w, http.StatusBadRequest, "name is required")
	case errors.Is(err, watchlist.ErrAlreadyWatched):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, watchlist.ErrNotWatched):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error("update watchlist failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to update watchlist")
	}
}

type checkResponse struct {
	Login    string        `json:"login"`
	Live     bool          `json:"live"`
	Streams  []live.Stream `json:"streams"`
	Messages []string      `json:"messages"`
}

// HandleCheck runs an on-demand live check (?name=) and returns the rendered notifications.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := r.URL.Query().Get("name")
	collector := &notify.Collector{}
	streams, err := h.poller.CheckNow(r.Context(), name, collector)
	if err != nil {
		if errors.Is(err, watchlist.ErrEmptyIdentifier) {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Error("check streamer failed", slog.String("name", name), slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusBadGateway, "There was an error checking that streamer.")
		return
	}

	resp := checkResponse{
		Login:    watchlist.Normalize(name),
		Live:     len(streams) > 0,
		Streams:  streams,
		Messages: []string{},
	}
	if resp.Streams == nil {
		resp.Streams = []live.Stream{}
	}
	for _, m := range collector.Messages() {
		resp.Messages = append(resp.Messages, m.Text())
	}
	writeJSON(w, http.StatusOK, resp)
}

// isMutating reports whether the request changes state or triggers upstream calls.
func isMutating(r *http.Request) bool {
	if r.URL.Path == "/check" {
		return true
	}
	return r.URL.Path == "/watchlist" && !strings.EqualFold(r.Method, http.MethodGet)
}
