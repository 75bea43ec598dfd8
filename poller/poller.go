// Package poller runs the scheduled live-status poll and on-demand checks.
//
// A scheduled cycle loads the watchlist, asks the query engine which logins are
// live, reconciles against the service's tracker and delivers one notification
// per newly live streamer to the channel target. On-demand checks use a fresh
// tracker every time, so they always answer and never mark anyone as already
// announced for the scheduled path.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/streamwatch/live"
	"github.com/onnwee/streamwatch/notify"
	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/twitchapi"
	"github.com/onnwee/streamwatch/watchlist"
)

// Watchlist is the read side of the watchlist.
type Watchlist interface {
	All(ctx context.Context) ([]string, error)
}

// Querier reports which logins are live.
type Querier interface {
	QueryLive(ctx context.Context, logins []string) ([]live.Stream, error)
}

// Status describes the most recent scheduled cycle.
type Status struct {
	Cycles        int           `json:"cycles"`
	LastRun       time.Time     `json:"last_run,omitempty"`
	LastDuration  time.Duration `json:"last_duration_ns"`
	LastError     string        `json:"last_error,omitempty"`
	WatchlistSize int           `json:"watchlist_size"`
	Notified      int           `json:"notified_total"`
}

// Service owns the scheduled live state.
type Service struct {
	Watchlist Watchlist
	Engine    Querier
	Target    notify.Target
	Clock     clockwork.Clock

	tracker *live.Tracker
	cycleMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// New builds a service with an empty live state.
func New(wl Watchlist, engine Querier, target notify.Target) *Service {
	return &Service{
		Watchlist: wl,
		Engine:    engine,
		Target:    target,
		Clock:     clockwork.NewRealClock(),
		tracker:   live.NewTracker(),
	}
}

func (s *Service) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

// Start runs a cycle immediately and then every interval until ctx is done.
// Cycle errors and panics are logged; the loop keeps going.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	log := slog.Default().With(slog.String("component", "poller"))
	log.Info("poller started", slog.Duration("interval", interval))

	s.safeCycle(ctx, log)
	ticker := s.clock().NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return
		case <-ticker.Chan():
			s.safeCycle(ctx, log)
		}
	}
}

func (s *Service) safeCycle(ctx context.Context, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.IncPollFailure("panic")
			log.Error("poll cycle panic", slog.Any("panic", r))
		}
	}()
	if err := s.RunOnce(ctx); err != nil {
		log.Warn("poll cycle failed", slog.Any("err", err))
	}
}

// RunOnce performs one scheduled cycle. Only a failure to load the watchlist or
// to query Twitch is returned as an error; in that case the live state is left
// as it was. Delivery failures are logged per streamer and returned joined,
// after every notification has been attempted.
func (s *Service) RunOnce(ctx context.Context) (err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "poller", "cycle")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "poller"))

	start := s.clock().Now()
	telemetry.Inc(telemetry.PollCycles)
	size, notified := 0, 0
	defer func() {
		d := s.clock().Since(start)
		if telemetry.CycleDuration != nil {
			telemetry.CycleDuration.Observe(d.Seconds())
		}
		s.recordStatus(start, d, size, notified, err)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
	}()

	logins, err := s.Watchlist.All(ctx)
	if err != nil {
		telemetry.IncPollFailure("store")
		return fmt.Errorf("load watchlist: %w", err)
	}
	size = len(logins)
	telemetry.SetWatchlistSize(size)
	span.SetAttributes(attribute.Int("watchlist.size", size))
	if size == 0 {
		log.Info("no streamers to check")
		return nil
	}

	fresh, err := s.Engine.QueryLive(ctx, logins)
	if err != nil {
		telemetry.IncPollFailure(failureKind(err))
		return fmt.Errorf("query live streams: %w", err)
	}

	toNotify := s.tracker.Reconcile(fresh, false)
	telemetry.SetStreamsLive(len(fresh))
	log.Info("poll cycle complete", slog.Int("watched", size), slog.Int("live", len(fresh)), slog.Int("new", len(toNotify)))

	var errs []error
	for _, st := range toNotify {
		if derr := s.Target.Deliver(ctx, notify.Render(st)); derr != nil {
			telemetry.Inc(telemetry.DeliveryFailures)
			log.Error("notification delivery failed", slog.String("login", st.UserLogin), slog.Any("err", derr))
			errs = append(errs, derr)
			continue
		}
		notified++
		telemetry.Inc(telemetry.NotificationsSent)
	}
	if len(errs) > 0 {
		telemetry.IncPollFailure("delivery")
	}
	return errors.Join(errs...)
}

// CheckNow reports whether name is live right now and, if so, delivers its
// notification to target regardless of what the scheduled cycle has announced.
// The scheduled live state is neither read nor modified.
func (s *Service) CheckNow(ctx context.Context, name string, target notify.Target) ([]live.Stream, error) {
	login := watchlist.Normalize(name)
	if login == "" {
		return nil, watchlist.ErrEmptyIdentifier
	}
	ctx, span := telemetry.StartSpan(ctx, "poller", "check", attribute.String("login", login))
	defer span.End()

	fresh, err := s.Engine.QueryLive(ctx, []string{login})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("check %s: %w", login, err)
	}
	streams := live.NewTracker().Reconcile(fresh, true)

	var errs []error
	for _, st := range streams {
		if derr := target.Deliver(ctx, notify.Render(st)); derr != nil {
			errs = append(errs, derr)
		}
	}
	if err := errors.Join(errs...); err != nil {
		telemetry.RecordError(span, err)
		return streams, err
	}
	telemetry.SetSpanSuccess(span)
	return streams, nil
}

// Live returns the streamers considered live by the scheduled path.
func (s *Service) Live() []live.Stream { return s.tracker.Snapshot() }

// Status returns a copy of the last cycle summary.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Service) recordStatus(start time.Time, d time.Duration, size, notified int, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Cycles++
	s.status.LastRun = start
	s.status.LastDuration = d
	s.status.WatchlistSize = size
	s.status.Notified += notified
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func failureKind(err error) string {
	var ce *twitchapi.CredentialError
	if errors.As(err, &ce) || errors.Is(err, twitchapi.ErrMissingCredentials) {
		return "credential"
	}
	return "upstream"
}
