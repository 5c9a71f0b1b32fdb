// Package scheduler implements the Scheduler (spec §4.9): a single
// leader-elected process that ticks a cron loop, finds workflows whose
// schedule is due, and admits a system-triggered execution for each.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Scheduler struct {
	cfg       *config.Config
	cronJob   *cron.Cron
	leader    *LeaderElection
	workflows *repositories.WorkflowRepository
	gate      *admission.Gate
	done      chan struct{}
}

func New(
	cfg *config.Config,
	redisClient *pkgredis.Client,
	workflows *repositories.WorkflowRepository,
	gate *admission.Gate,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		cronJob:   cron.New(),
		leader:    NewLeaderElection(redisClient, "scheduler-leader"),
		workflows: workflows,
		gate:      gate,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) Start() error {
	log.Info().Msg("Starting scheduler...")

	go s.runWithLeadership()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")
	close(s.done)
	s.cronJob.Stop()

	return nil
}

func (s *Scheduler) runWithLeadership() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		ctx := context.Background()
		acquired, err := s.leader.TryAcquire(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to acquire leadership")
			time.Sleep(5 * time.Second)
			continue
		}

		if acquired {
			log.Info().Msg("Acquired leadership, starting scheduler tick")
			s.setupJobs()
			s.cronJob.Start()
			s.maintainLeadership(ctx)
			s.cronJob.Stop()
			log.Info().Msg("Lost leadership, stopping scheduler tick")
		} else {
			log.Debug().Msg("Not leader, waiting...")
			time.Sleep(5 * time.Second)
		}
	}
}

func (s *Scheduler) maintainLeadership(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			s.leader.Release(ctx)
			return
		case <-ticker.C:
			if !s.leader.Extend(ctx) {
				return
			}
		}
	}
}

func (s *Scheduler) setupJobs() {
	tick := s.cfg.Orchestration.SchedulerTickSeconds
	if tick <= 0 {
		tick = 60
	}
	spec := "@every " + (time.Duration(tick) * time.Second).String()
	if _, err := s.cronJob.AddFunc(spec, s.tick); err != nil {
		log.Error().Err(err).Str("spec", spec).Msg("failed to register scheduler tick")
	}
}

// tick implements §4.9: scan active scheduled workflows, fire anything
// due, tie-broken by (workflow.id, next_due_at) for stable ordering when
// several fire in the same pass.
func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now()

	candidates, err := s.workflows.FindSchedulable(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to query schedulable workflows")
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ID != candidates[j].ID {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return dueAt(candidates[i]).Before(dueAt(candidates[j]))
	})

	for _, wf := range candidates {
		s.evaluate(ctx, wf, now)
	}
}

// evaluate implements §4.9 for a single workflow: compute next_due_at
// from last_fired_at (or now, the first time this workflow is seen), and
// fire only once that computed value has already elapsed.
func (s *Scheduler) evaluate(ctx context.Context, wf models.Workflow, now time.Time) {
	schedule, err := cronParser.Parse(*wf.Schedule)
	if err != nil {
		log.Warn().Err(err).Str("workflow_id", wf.ID.String()).Str("schedule", *wf.Schedule).
			Msg("scheduler: invalid cron expression, skipping")
		return
	}

	if wf.NextDueAt == nil {
		next := schedule.Next(now)
		if err := s.workflows.SetNextDueAt(ctx, wf.ID, next); err != nil {
			log.Error().Err(err).Str("workflow_id", wf.ID.String()).Msg("scheduler: failed to seed next_due_at")
		}
		return
	}

	if wf.NextDueAt.After(now) {
		return
	}

	executionID, err := s.gate.Admit(ctx, admission.Request{
		WorkflowID:  &wf.ID,
		TriggerType: models.TriggerSchedule,
		Sync:        false,
		Caller: authz.Caller{
			OrgID:       wf.OrganizationID,
			IsSuperuser: true, // system identity bypasses authz per §4.9
		},
	})
	if err != nil {
		log.Error().Err(err).Str("workflow_id", wf.ID.String()).Msg("scheduler: failed to admit scheduled execution")
		return
	}

	next := schedule.Next(now)
	if err := s.workflows.MarkFired(ctx, wf.ID, now, next); err != nil {
		log.Error().Err(err).Str("workflow_id", wf.ID.String()).Msg("scheduler: failed to record fired schedule")
	}

	log.Info().
		Str("workflow_id", wf.ID.String()).
		Str("execution_id", executionID.String()).
		Time("next_due_at", next).
		Msg("scheduler: fired scheduled execution")
}

func dueAt(wf models.Workflow) time.Time {
	if wf.NextDueAt != nil {
		return *wf.NextDueAt
	}
	return time.Time{}
}
