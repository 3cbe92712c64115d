package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 6 * time.Hour

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks. A job never overlaps with its own previous run.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	timeout  time.Duration
	log      zerolog.Logger
}

// New creates a new scheduler with the given timezone
func New(timezone string, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	log = log.With().Str("component", "scheduler").Logger()
	cronLog := log
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
	)

	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		timeout:  DefaultJobTimeout,
		log:      log,
	}, nil
}

// SetJobTimeout changes the per-run deadline of jobs added afterwards.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	s.timeout = d
}

// AddJob adds a job with a cron schedule
// schedule format: "0 */6 * * *" (every six hours)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	timeout := s.timeout
	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.log.Info().Str("job", name).Msg("Starting job")
		start := time.Now()

		if err := job(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		} else {
			s.log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("Job completed")
		}
	})

	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("Added job")

	return nil
}

// AddCrawlJob schedules the full crawl of all configured articles.
func (s *Scheduler) AddCrawlJob(schedule string, job Job) error {
	return s.AddJob("crawl", schedule, job)
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info().Str("timezone", s.timezone.String()).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Info().Msg("Stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Info().Str("job", name).Msg("Running job now")
	return job(ctx)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
