package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/streamwatch/live"
	"github.com/onnwee/streamwatch/notify"
	"github.com/onnwee/streamwatch/poller"
	"github.com/onnwee/streamwatch/watchlist"
)

type fakePoller struct {
	streams []live.Stream
	err     error
}

func (f *fakePoller) Status() poller.Status { return poller.Status{Cycles: 3, WatchlistSize: 1} }
func (f *fakePoller) Live() []live.Stream   { return f.streams }

func (f *fakePoller) CheckNow(ctx context.Context, name string, target notify.Target) ([]live.Stream, error) {
	if watchlist.Normalize(name) == "" {
		return nil, watchlist.ErrEmptyIdentifier
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.streams {
		_ = target.Deliver(ctx, notify.Render(s))
	}
	return f.streams, nil
}

func newTestMux(t *testing.T, p *fakePoller, opts Options, checks ...ReadyCheck) http.Handler {
	t.Helper()
	wl := watchlist.NewList(&watchlist.FileStore{Path: filepath.Join(t.TempDir(), "streamers.json")})
	return NewMux(NewHandlers(wl, p, checks...), opts)
}

func do(h http.Handler, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	h := newTestMux(t, &fakePoller{}, Options{})
	rr := do(h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}
	rr = do(h, http.MethodGet, "/healthz", "", "X-Correlation-ID", "abc")
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc" {
		t.Errorf("correlation id = %q, want abc", got)
	}
}

func TestReadyz(t *testing.T) {
	h := newTestMux(t, &fakePoller{}, Options{})
	if rr := do(h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Errorf("readyz = %d %s", rr.Code, rr.Body.String())
	}

	failing := ReadyCheck{Name: "database", Fn: func(context.Context) error { return errors.New("down") }}
	h = newTestMux(t, &fakePoller{}, Options{}, failing)
	rr := do(h, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rr.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["failed_check"] != "database" {
		t.Errorf("body = %v", body)
	}
}

func TestWatchlistEndpoints(t *testing.T) {
	h := newTestMux(t, &fakePoller{}, Options{})

	steps := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/watchlist", `{"name":"Alice"}`, http.StatusCreated},
		{http.MethodPost, "/watchlist", `{"name":"alice"}`, http.StatusConflict},
		{http.MethodPost, "/watchlist", `{"name":"  "}`, http.StatusBadRequest},
		{http.MethodPost, "/watchlist", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/watchlist", `{"name":"bob"}`, http.StatusCreated},
		{http.MethodDelete, "/watchlist?name=BOB", "", http.StatusOK},
		{http.MethodDelete, "/watchlist?name=bob", "", http.StatusNotFound},
		{http.MethodPut, "/watchlist", "", http.StatusMethodNotAllowed},
	}
	for _, s := range steps {
		if rr := do(h, s.method, s.target, s.body); rr.Code != s.want {
			t.Errorf("%s %s %s = %d, want %d (%s)", s.method, s.target, s.body, rr.Code, s.want, rr.Body.String())
		}
	}

	rr := do(h, http.MethodGet, "/watchlist", "")
	var body struct {
		Streamers []string `json:"streamers"`
		Count     int      `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Streamers[0] != "alice" {
		t.Errorf("watchlist = %+v", body)
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	h := newTestMux(t, &fakePoller{}, Options{Auth: AuthConfig{Token: "s3cret"}})

	if rr := do(h, http.MethodGet, "/watchlist", ""); rr.Code != http.StatusOK {
		t.Errorf("GET /watchlist = %d, want 200 without auth", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/watchlist", `{"name":"alice"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("POST without token = %d, want 401", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/check?name=alice", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("check without token = %d, want 401", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/watchlist", `{"name":"alice"}`, "X-Admin-Token", "s3cret"); rr.Code != http.StatusCreated {
		t.Errorf("POST with token = %d, want 201", rr.Code)
	}
}

func TestMutationsRateLimited(t *testing.T) {
	h := newTestMux(t, &fakePoller{}, Options{RateLimit: RateLimitConfig{Enabled: true, PerMinute: 1, Burst: 1}})

	if rr := do(h, http.MethodGet, "/check?name=alice", ""); rr.Code != http.StatusOK {
		t.Fatalf("first check = %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/check?name=alice", ""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second check = %d, want 429", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := do(h, http.MethodGet, "/status", ""); rr.Code != http.StatusOK {
			t.Errorf("status should not be rate limited, got %d", rr.Code)
		}
	}
}

func TestCheckEndpoint(t *testing.T) {
	p := &fakePoller{}
	h := newTestMux(t, p, Options{})

	rr := do(h, http.MethodGet, "/check?name=alice", "")
	var resp checkResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if rr.Code != http.StatusOK || resp.Live || resp.Login != "alice" {
		t.Errorf("offline check = %d %+v", rr.Code, resp)
	}

	p.streams = []live.Stream{{UserID: "1", UserLogin: "alice", UserName: "Alice"}}
	rr = do(h, http.MethodGet, "/check?name=%40Alice", "")
	resp = checkResponse{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Live || len(resp.Messages) != 1 || !strings.HasPrefix(resp.Messages[0], "Hey, Alice is live!") {
		t.Errorf("live check = %+v", resp)
	}

	if rr := do(h, http.MethodGet, "/check", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d, want 400", rr.Code)
	}

	p.err = errors.New("helix down")
	if rr := do(h, http.MethodGet, "/check?name=alice", ""); rr.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", rr.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestMux(t, &fakePoller{streams: []live.Stream{{UserID: "1", UserLogin: "alice"}}}, Options{})
	rr := do(h, http.MethodGet, "/status", "")
	var resp statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Poll.Cycles != 3 || len(resp.Live) != 1 {
		t.Errorf("status = %+v", resp)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestServeDrainsInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	started := make(chan struct{})
	var finished atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, handler) }()

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			respCh <- 0
			return
		}
		_ = resp.Body.Close()
		respCh <- resp.StatusCode
	}()

	<-started
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Serve returned before the in-flight request finished")
	}
	if code := <-respCh; code != http.StatusOK {
		t.Errorf("in-flight request status = %d, want 200", code)
	}
}
