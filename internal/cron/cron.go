// Package cron runs the pipeline's periodic maintenance: purging aged
// notification records and reconciling the buffer's due index.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/buffer"
)

// RecordPurger deletes notification records older than the given age.
type RecordPurger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type Options struct {
	PurgeInterval     time.Duration
	PurgeAge          time.Duration
	ReconcileInterval time.Duration
	ReconcileWindow   time.Duration
}

type Service struct {
	records RecordPurger
	store   *buffer.Store
	opts    Options
	logger  *zap.Logger
	sched   *cron.Cron
}

func NewService(records RecordPurger, store *buffer.Store, opts Options, logger *zap.Logger) *Service {
	return &Service{
		records: records,
		store:   store,
		opts:    opts,
		logger:  logger,
		sched:   cron.New(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if _, err := s.sched.AddFunc(every(s.opts.PurgeInterval), func() { s.purgeRecords(ctx) }); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}
	if _, err := s.sched.AddFunc(every(s.opts.ReconcileInterval), func() { s.reconcileBuffer(ctx) }); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	s.sched.Start()
	s.logger.Info("cron.started",
		zap.Duration("purge_interval", s.opts.PurgeInterval),
		zap.Duration("reconcile_interval", s.opts.ReconcileInterval))
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (s *Service) Stop() {
	<-s.sched.Stop().Done()
	s.logger.Info("cron.stopped")
}

func (s *Service) purgeRecords(ctx context.Context) {
	purged, err := s.records.PurgeOlderThan(ctx, s.opts.PurgeAge)
	if err != nil {
		s.logger.Error("cron.purge_failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("cron.purged_records", zap.Int64("count", purged))
	}
}

func (s *Service) reconcileBuffer(ctx context.Context) {
	stats, err := s.store.Reconcile(ctx, time.Now(), s.opts.ReconcileWindow)
	if err != nil {
		s.logger.Error("cron.reconcile_failed", zap.Error(err))
		return
	}
	if stats.DroppedDueEntries > 0 || stats.ReindexedGroups > 0 {
		s.logger.Info("cron.reconciled_buffer",
			zap.Int("dropped_due_entries", stats.DroppedDueEntries),
			zap.Int("reindexed_groups", stats.ReindexedGroups))
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
