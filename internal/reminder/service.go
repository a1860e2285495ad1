package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepSource is the persistence surface the staleness sweep needs.
type SweepSource interface {
	StaleLeads(ctx context.Context, cutoff time.Time) ([]StaleLead, error)
	HasOpenAutoReminder(ctx context.Context, leadID string) (bool, error)
	CreateAuto(ctx context.Context, leadID string, dueAt time.Time, text string) (Reminder, error)
}

// Service creates follow-up reminders for leads that have gone quiet. The
// sweep is idempotent: a lead holds at most one open auto reminder no
// matter how often it runs.
type Service struct {
	logger     *slog.Logger
	source     SweepSource
	staleAfter time.Duration
	scheduler  *cron.Cron
}

// NewService creates a Service. staleDays is the inactivity threshold.
func NewService(log *slog.Logger, source SweepSource, staleDays int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if staleDays <= 0 {
		staleDays = 14
	}
	return &Service{
		logger:     log.With(slog.String("service", "reminders")),
		source:     source,
		staleAfter: time.Duration(staleDays) * 24 * time.Hour,
	}
}

// Sweep runs one staleness pass and returns how many reminders it created.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.source.StaleLeads(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	created := 0
	for _, lead := range stale {
		open, err := s.source.HasOpenAutoReminder(ctx, lead.ID)
		if err != nil {
			s.logger.Error("check open reminder", slog.String("lead_id", lead.ID), slog.Any("error", err))
			continue
		}
		if open {
			continue
		}
		days := int(time.Since(lead.LastActivity).Hours() / 24)
		text := fmt.Sprintf("Follow up with %s (%s): no activity for %d days",
			lead.ContactName, lead.Code, days)
		if _, err := s.source.CreateAuto(ctx, lead.ID, time.Now(), text); err != nil {
			s.logger.Error("create auto reminder", slog.String("lead_id", lead.ID), slog.Any("error", err))
			continue
		}
		created++
	}
	if created > 0 {
		s.logger.Info("staleness sweep completed", slog.Int("created", created), slog.Int("stale", len(stale)))
	}
	return created, nil
}

// StartSchedule runs Sweep on the given cron spec until Stop is called.
func (s *Service) StartSchedule(ctx context.Context, spec string) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("scheduled sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep (%q): %w", spec, err)
	}
	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Info("reminder schedule started", slog.String("spec", spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
}
