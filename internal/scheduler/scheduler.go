// Package scheduler imports subscribed iCalendar feeds on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/config"
	"orderlyflow/internal/ics"
	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/metrics"
	"orderlyflow/internal/model"
)

// Fetcher downloads one feed. *ics.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Importer stores parsed feed items. *calendar.Service satisfies it.
type Importer interface {
	ImportEvents(ctx context.Context, opts calendar.ImportOptions, items []ics.Imported) (calendar.ImportResult, error)
}

// Result is the outcome of syncing one subscription.
type Result struct {
	SubscriptionID string
	Import         calendar.ImportResult
	FromCache      bool
	Err            error
}

// Scheduler runs a sync of every subscription on each cron tick. Ticks that
// arrive while a sync is still running are skipped.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	subs     []config.SubscriptionConfig
	fetcher  Fetcher
	importer Importer
	loc      *time.Location

	mu     sync.Mutex
	runCtx context.Context
}

// New validates spec (standard 5-field cron) and builds a Scheduler.
func New(spec string, subs []config.SubscriptionConfig, fetcher Fetcher, importer Importer, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid sync_cron %q: %w", spec, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		spec:     spec,
		subs:     subs,
		fetcher:  fetcher,
		importer: importer,
		loc:      loc,
		runCtx:   context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is canceled, then waits for
// a running sync to finish. With syncNow, one sync runs before the first
// tick.
func (s *Scheduler) Run(ctx context.Context, syncNow bool) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	if len(s.subs) == 0 {
		appLog.Info("scheduler idle; no subscriptions configured")
		<-ctx.Done()
		return nil
	}

	if syncNow {
		s.SyncAll(ctx)
	}

	s.cron.Start()
	appLog.Info("scheduler started", "cron", s.spec, "subscriptions", len(s.subs), "next", s.Next())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
	return nil
}

// Next returns the next scheduled sync time, or zero when not running.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	s.SyncAll(ctx)
}

// SyncAll fetches, parses and imports every subscription in turn. A failing
// subscription is logged and counted; the rest still run.
func (s *Scheduler) SyncAll(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.subs))
	for _, sub := range s.subs {
		if ctx.Err() != nil {
			break
		}
		res := s.syncOne(ctx, sub)
		metrics.TrackSubscriptionImport(sub.ID, res.Err)
		if res.Err != nil {
			metrics.TrackError("sync")
			appLog.Error("subscription sync failed", res.Err, "subscription", sub.ID)
		}
		results = append(results, res)
	}
	return results
}

func (s *Scheduler) syncOne(ctx context.Context, sub config.SubscriptionConfig) Result {
	res := Result{SubscriptionID: sub.ID}
	src := ics.Source{ID: sub.ID, URL: sub.URL}

	fetched, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}
	res.FromCache = fetched.FromCache

	items, err := ics.Parse(src, fetched.Body, s.loc)
	if err != nil {
		res.Err = fmt.Errorf("parse: %w", err)
		return res
	}

	res.Import, err = s.importer.ImportEvents(ctx, calendar.ImportOptions{
		OwnerID: sub.OwnerID,
		HomeID:  sub.HomeID,
		Color:   model.Color(sub.Color),
		Origin:  sub.ID,
	}, items)
	if err != nil {
		res.Err = fmt.Errorf("import: %w", err)
	}
	return res
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if err == nil {
		err = errors.New(msg)
	}
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
