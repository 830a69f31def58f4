// Package regen writes every person's calendar feed to disk, once or on a
// cron schedule, in rate-limited groups.
package regen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"crewcal/internal/config"
	"crewcal/internal/feed"
	"crewcal/internal/ics"
	appLog "crewcal/internal/log"
	"crewcal/internal/notion"
)

// Lister enumerates the people database.
type Lister interface {
	ListPeople(ctx context.Context, databaseID string) ([]notion.Person, error)
}

// Generator renders a person already returned by the Lister.
type Generator interface {
	GeneratePerson(person notion.Person, format ics.Format) (feed.Result, error)
}

// Stats summarizes one regeneration cycle.
type Stats struct {
	People  int
	Written int
	Empty   int
	Failed  int
	Elapsed time.Duration
}

// Regenerator runs regeneration cycles. A single Regenerator must not run
// overlapping cycles; Schedule guarantees that.
type Regenerator struct {
	lister     Lister
	gen        Generator
	databaseID string

	outDir    string
	batchSize int
	pause     time.Duration

	// sleep waits between groups; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(lister Lister, gen Generator, databaseID string, cfg config.RegenConfig) *Regenerator {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Regenerator{
		lister:     lister,
		gen:        gen,
		databaseID: databaseID,
		outDir:     cfg.OutputDir,
		batchSize:  batch,
		pause:      cfg.BatchPause,
		sleep:      sleepCtx,
	}
}

// Run regenerates every person's feed once. Per-person failures are logged
// and counted; only listing failures and cancellation abort the cycle.
func (r *Regenerator) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	people, err := r.lister.ListPeople(ctx, r.databaseID)
	if err != nil {
		return stats, fmt.Errorf("list people: %w", err)
	}
	stats.People = len(people)
	appLog.Info("regen cycle start", "people", len(people), "batch_size", r.batchSize, "out", r.outDir)

	var mu sync.Mutex
	for i := 0; i < len(people); i += r.batchSize {
		if i > 0 {
			if err := r.sleep(ctx, r.pause); err != nil {
				return stats, err
			}
		}
		end := min(i+r.batchSize, len(people))

		var g errgroup.Group
		for _, p := range people[i:end] {
			g.Go(func() error {
				empty, err := r.one(p)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					stats.Failed++
				case empty:
					stats.Empty++
					stats.Written++
				default:
					stats.Written++
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	stats.Elapsed = time.Since(start)
	appLog.Info("regen cycle done",
		"people", stats.People,
		"written", stats.Written,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed.String(),
	)
	return stats, nil
}

// one generates, verifies and writes a single feed file.
func (r *Regenerator) one(p notion.Person) (bool, error) {
	res, err := r.gen.GeneratePerson(p, ics.FormatICS)
	if err != nil {
		appLog.Error("regen: generate failed", err, "person", p.ID, "name", p.Name)
		return false, err
	}

	parsed, err := ics.ParseDocument(res.Body)
	if err != nil {
		appLog.Error("regen: generated feed does not parse", err, "person", res.PersonID)
		return false, err
	}
	if len(parsed) != res.Written {
		err := fmt.Errorf("feed has %d events, expected %d", len(parsed), res.Written)
		appLog.Error("regen: verification failed", err, "person", res.PersonID)
		return false, err
	}

	path := filepath.Join(r.outDir, res.PersonID+".ics")
	if err := config.WriteFileAtomic(path, res.Body, 0o755, 0o644); err != nil {
		appLog.Error("regen: write failed", err, "person", res.PersonID, "path", path)
		return false, err
	}
	appLog.Debug("regen: wrote feed", "person", res.PersonID, "path", path, "events", res.Written)
	return res.Empty, nil
}

// Schedule runs a cycle on every tick of spec until ctx is cancelled. A tick
// that fires while the previous cycle is still running is skipped.
func (r *Regenerator) Schedule(ctx context.Context, spec string) error {
	if spec == "" {
		return errors.New("regen: empty cron expression")
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("regen cycle failed", err)
		}
	}); err != nil {
		return fmt.Errorf("regen: parse cron %q: %w", spec, err)
	}

	c.Start()
	appLog.Info("regen scheduled", "cron", spec)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("regen scheduler stopped")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
