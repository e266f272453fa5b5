// Package scheduler triggers ingestion passes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"fjacquet/networth-sync/internal/ingest"
	"fjacquet/networth-sync/internal/logging"
)

// DefaultSchedule runs a pass every four hours.
const DefaultSchedule = "@every 4h"

// PassRunner runs one ingestion pass.
type PassRunner interface {
	RunPass(ctx context.Context) (ingest.Summary, error)
}

// Scheduler owns the cron instance. Scheduled passes never overlap each
// other; a manual pass may still run alongside.
type Scheduler struct {
	cron    *cron.Cron
	runner  PassRunner
	entryID cron.EntryID
	logger  logging.Logger
}

// New parses spec and registers the pass. Nothing runs until Start.
func New(spec string, runner PassRunner, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if spec == "" {
		spec = DefaultSchedule
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		logger: logger,
	}
	id, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.logger.WithField("next_run", s.Next().Format(time.RFC3339)).Info("Scheduler started")
	s.cron.Start()
}

// Stop stops firing and waits for a running pass to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stopped before the running pass finished")
	}
}

// Next returns the next planned run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() && entry.Schedule != nil {
		return entry.Schedule.Next(time.Now())
	}
	return entry.Next
}

// RunOnce runs a pass and logs its outcome. Errors are not returned: a
// scheduled pass has nobody to report to.
func (s *Scheduler) RunOnce(ctx context.Context) {
	summary, err := s.runner.RunPass(ctx)
	logger := s.logger.WithFields(
		logging.Field{Key: logging.FieldPassID, Value: summary.PassID},
		logging.Field{Key: logging.FieldCount, Value: summary.Applied},
	)
	if err != nil {
		logger.WithError(err).Error("Scheduled ingestion pass failed")
		return
	}
	logger.Info("Scheduled ingestion pass completed")
}

// cronLogger routes cron's own messages to our logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)...).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)...).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
