package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	appconfig "github.com/dataworks-ops/automator/config"
	core "github.com/dataworks-ops/automator/internal/agent/core"
	"github.com/dataworks-ops/automator/internal/conversation"
)

// Scheduler submits configured recurring tasks through the normal
// orchestration path. Each entry keeps its own session, so scheduled runs
// never pollute interactive conversations.
type Scheduler struct {
	orch     *core.Orchestrator
	sessions conversation.Store
	entries  []scheduleEntry
	logger   *log.Logger
	stop     chan struct{}
}

type scheduleEntry struct {
	cfg  appconfig.ScheduleConfig
	expr *cronexpr.Expression
	next time.Time
}

func NewScheduler(orch *core.Orchestrator, sessions conversation.Store, cfgs []appconfig.ScheduleConfig) *Scheduler {
	logger := log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	s := &Scheduler{orch: orch, sessions: sessions, logger: logger, stop: make(chan struct{})}
	now := time.Now()
	for _, cfg := range cfgs {
		expr, err := cronexpr.Parse(cfg.Cron)
		if err != nil {
			logger.Printf("skipping schedule %q: bad cron %q: %v", cfg.Name, cfg.Cron, err)
			continue
		}
		s.entries = append(s.entries, scheduleEntry{cfg: cfg, expr: expr, next: expr.Next(now)})
	}
	return s
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	}()
}

func (s *Scheduler) Stop() { close(s.stop) }

func (s *Scheduler) tick(now time.Time) {
	for i := range s.entries {
		e := &s.entries[i]
		if e.next.IsZero() || now.Before(e.next) {
			continue
		}
		e.next = e.expr.Next(now)
		s.submit(e.cfg)
	}
}

func (s *Scheduler) submit(cfg appconfig.ScheduleConfig) {
	session := cfg.Session
	if session == "" {
		session = "schedule:" + cfg.Name
	}
	task := core.NewTask(cfg.Task, session)
	ctx := context.Background()
	convLog, err := s.sessions.Session(ctx, task.SessionID)
	if err != nil {
		s.logger.Printf("schedule %q: session: %v", cfg.Name, err)
		return
	}
	go func() {
		report, err := s.orch.Run(ctx, task, convLog)
		if err != nil {
			s.logger.Printf("schedule %q task %s failed: %v", cfg.Name, task.ID, err)
			return
		}
		s.logger.Printf("schedule %q task %s finished: %s after %d iterations", cfg.Name, task.ID, report.Status, report.Iterations)
	}()
}
