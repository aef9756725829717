package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// Scheduler fires schedule-triggered workflows. It rescans the workflow
// store every tick so definitions created or paused at runtime take effect
// without a restart. Cron expressions use the standard five-field format;
// an "interval" of whole seconds is accepted as a simpler alternative.
type Scheduler struct {
	logger    *slog.Logger
	workflows ports.WorkflowRepository
	engine    *WorkflowEngine
	tick      time.Duration

	mu      sync.Mutex
	lastRun map[domain.WorkflowID]time.Time
}

func NewScheduler(logger *slog.Logger, workflows ports.WorkflowRepository, engine *WorkflowEngine, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Scheduler{
		logger:    logger,
		workflows: workflows,
		engine:    engine,
		tick:      tick,
		lastRun:   make(map[domain.WorkflowID]time.Time),
	}
}

// Run blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.scan(ctx, now)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context, now time.Time) {
	workflows, err := s.workflows.ListWorkflows(ctx)
	if err != nil {
		s.logger.Error("scheduler failed to list workflows", "error", err)
		return
	}

	for _, wf := range workflows {
		if wf.Status != domain.WorkflowStatusActive || wf.Trigger.Type != domain.TriggerSchedule {
			continue
		}
		if !s.due(&wf, now) {
			continue
		}

		s.mu.Lock()
		s.lastRun[wf.ID] = now
		s.mu.Unlock()

		s.logger.Info("schedule trigger fired", "workflow_id", wf.ID, "name", wf.Name)
		go func(wf domain.Workflow) {
			input, _ := wf.Trigger.Config["input"].(map[string]any)
			userID, _ := wf.Trigger.Config["user_id"].(string)
			if _, err := s.engine.Execute(context.Background(), wf.ID, input, userID); err != nil {
				s.logger.Error("scheduled execution failed", "workflow_id", wf.ID, "error", err)
			}
		}(wf)
	}
}

// due reports whether the workflow's schedule has a firing time between its
// last run and now.
func (s *Scheduler) due(wf *domain.Workflow, now time.Time) bool {
	s.mu.Lock()
	last, seen := s.lastRun[wf.ID]
	s.mu.Unlock()
	if !seen {
		// First sighting anchors the schedule; it does not fire.
		s.mu.Lock()
		s.lastRun[wf.ID] = now
		s.mu.Unlock()
		return false
	}

	if expr, ok := wf.Trigger.Config["cron"].(string); ok && expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			s.logger.Warn("invalid cron expression, skipping workflow",
				"workflow_id", wf.ID, "cron", expr, "error", err)
			return false
		}
		return !sched.Next(last).After(now)
	}

	if secs, ok := wf.Trigger.Config["interval"].(float64); ok && secs > 0 {
		return now.Sub(last) >= time.Duration(secs)*time.Second
	}

	return false
}
