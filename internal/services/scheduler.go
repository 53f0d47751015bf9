package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/pkg/logger"
	"gorm.io/gorm"
)

// Scheduler runs housekeeping for reports and the cache: artifact retention,
// cache sweeps and optional nightly report prewarming.
type Scheduler struct {
	insights   *InsightService
	store      Store
	queue      TaskQueue
	db         *gorm.DB
	report     config.ReportConfig
	sweepEvery time.Duration
	owner      string
	cron       *cron.Cron
}

// NewScheduler wires the jobs. db may be nil, in which case jobs run
// without the cross-instance lock.
func NewScheduler(insights *InsightService, store Store, queue TaskQueue, db *gorm.DB, cfg *config.Config) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		insights:   insights,
		store:      store,
		queue:      queue,
		db:         db,
		report:     cfg.Report,
		sweepEvery: cfg.Cache.SweepEvery,
		owner:      fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if s.report.PurgeCron != "" {
		if _, err := s.cron.AddFunc(s.report.PurgeCron, s.purgeArtifacts); err != nil {
			return fmt.Errorf("schedule artifact purge: %w", err)
		}
		logger.Infof("[Scheduler] Artifact purge scheduled (cron: %s)", s.report.PurgeCron)
	}
	if s.sweepEvery > 0 {
		if _, err := s.cron.AddFunc("@every "+s.sweepEvery.String(), s.sweepCache); err != nil {
			return fmt.Errorf("schedule cache sweep: %w", err)
		}
	}
	if s.report.PrewarmCron != "" && s.queue != nil {
		if _, err := s.cron.AddFunc(s.report.PrewarmCron, s.prewarmReports); err != nil {
			return fmt.Errorf("schedule report prewarm: %w", err)
		}
		logger.Infof("[Scheduler] Report prewarm scheduled (cron: %s)", s.report.PrewarmCron)
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// claim reports whether this instance should run job for the current slot.
func (s *Scheduler) claim(job string, slot time.Duration) bool {
	if s.db == nil {
		return true
	}
	now := time.Now()
	key := now.Truncate(slot).UTC().Format(time.RFC3339)
	ok, err := models.TryAcquireSchedulerLock(s.db, job, key, s.owner, slot, now)
	if err != nil {
		logger.Warn().Err(err).Str("job", job).Msg("[Scheduler] Lock check failed, skipping run")
		return false
	}
	return ok
}

func (s *Scheduler) purgeArtifacts() {
	if !s.claim("report_purge", time.Hour) {
		return
	}
	n, err := s.insights.PurgeExpiredArtifacts(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("[Scheduler] Artifact purge failed")
		return
	}
	logger.Infof("[Scheduler] Purged %d expired report artifacts", n)
}

func (s *Scheduler) sweepCache() {
	n, err := s.insights.SweepCache(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("[Scheduler] Cache sweep failed")
		return
	}
	if n > 0 {
		logger.Debug().Int("removed", n).Msg("[Scheduler] Cache swept")
	}
}

// prewarmReports queues a report for each active project on behalf of its
// team's leads.
func (s *Scheduler) prewarmReports() {
	if !s.claim("report_prewarm", time.Hour) {
		return
	}
	ctx := context.Background()
	tasks, err := s.PrewarmTasks(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("[Scheduler] Failed to plan report prewarm")
		return
	}
	for _, t := range tasks {
		if err := s.queue.Enqueue(t); err != nil {
			logger.Warn().Err(err).Uint("actor", t.ActorID).Msg("[Scheduler] Failed to enqueue report prewarm")
		}
	}
	logger.Infof("[Scheduler] Queued %d report prewarm tasks", len(tasks))
}

// PrewarmTasks lists one task per (active project, team lead) pair.
func (s *Scheduler) PrewarmTasks(ctx context.Context) ([]*ReportTask, error) {
	projects, err := s.store.FindProjects(ctx, ProjectFilter{Status: analytics.ProjectActive})
	if err != nil {
		return nil, err
	}
	teamIDs := []uint{}
	for _, p := range projects {
		if p.TeamID != nil {
			teamIDs = append(teamIDs, *p.TeamID)
		}
	}
	if len(teamIDs) == 0 {
		return nil, nil
	}
	users, err := s.store.FindUsers(ctx, UserFilter{TeamIDs: teamIDs})
	if err != nil {
		return nil, err
	}
	leads := make(map[uint][]uint)
	for _, u := range users {
		if u.Role == analytics.RoleTeamLead && u.TeamID != nil {
			leads[*u.TeamID] = append(leads[*u.TeamID], u.ID)
		}
	}

	var tasks []*ReportTask
	for _, p := range projects {
		if p.TeamID == nil {
			continue
		}
		for _, leadID := range leads[*p.TeamID] {
			id := p.ID
			tasks = append(tasks, &ReportTask{ActorID: leadID, ProjectID: &id})
		}
	}
	return tasks, nil
}

// ReportTaskProcessor runs a queued report task as the actor it names.
func ReportTaskProcessor(insights *InsightService) func(context.Context, *ReportTask) error {
	return func(ctx context.Context, task *ReportTask) error {
		actor, err := insights.Planner().ResolveActor(ctx, task.ActorID)
		if err != nil {
			return err
		}
		res, err := insights.GenerateReport(ctx, actor, task.ProjectID)
		if err != nil {
			return err
		}
		logger.Info().Str("artifact", res.ArtifactID).Bool("cached", res.Cached).Msg("[Scheduler] Report prewarmed")
		return nil
	}
}
