package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// Start loads every persisted task, rebuilds workload accounting, and
// launches the periodic cycle. Idempotent. Terminal rows are loaded too:
// blocked tasks and new dependency edges must still see dependencies that
// completed in a previous process.
func (s *Scheduler) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		return nil
	}
	if s.cfg.SweepCron != "" && !gronx.New().IsValid(s.cfg.SweepCron) {
		return fault.New(fault.Validation, "invalid sweep_cron expression %q", s.cfg.SweepCron)
	}

	all, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return fault.Wrap(err, fault.Transient, "load tasks")
	}
	s.mu.Lock()
	for i := range all {
		t := all[i].Clone()
		s.byID[t.ID] = t
		if t.AssignedAgent != nil && (t.Status == store.TaskAssigned || t.Status == store.TaskInProgress) {
			s.addWorkloadLocked(*t.AssignedAgent, t.ID)
		}
	}
	restored := len(s.byID)
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(loopCtx)
	slog.Info("scheduler: started", "restored_tasks", restored, "cycle", s.cfg.Cycle())
	return nil
}

// Stop cancels the periodic cycle and waits for it to exit.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	slog.Info("scheduler: stopped")
}

// Running reports whether the periodic cycle is active.
func (s *Scheduler) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Cycle())
	defer ticker.Stop()
	gron := gronx.New()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cfg.SweepCron != "" {
				due, err := gron.IsDue(s.cfg.SweepCron, time.Now())
				if err != nil || !due {
					continue
				}
			}
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one scheduling pass: unblock tasks whose dependencies
// are satisfied, overdue notifications, then auto-assignment of available
// tasks to the least-loaded eligible agents. Exported so operators can
// trigger a pass out of band.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.unblockReady(ctx)
	s.notifyOverdue(ctx)
	s.autoAssign(ctx)
}

// notifyOverdue sends a priority-3 notification to the assignee of every
// non-terminal task past its due date.
func (s *Scheduler) notifyOverdue(ctx context.Context) {
	now := time.Now().UTC()

	var msgs []*store.Message
	s.mu.Lock()
	for _, t := range s.byID {
		if t.Status.Terminal() || t.DueDate == nil || !t.DueDate.Before(now) {
			continue
		}
		if t.AssignedAgent == nil {
			continue
		}
		msg := NewOverdueNotice(t)
		msgs = append(msgs, msg)
	}
	s.mu.Unlock()

	for _, msg := range msgs {
		if err := s.bus.Send(ctx, msg); err != nil {
			slog.Warn("scheduler: overdue notification failed", "to", msg.Recipient, "error", err)
		}
	}
}

// NewOverdueNotice builds the overdue notification for a task.
func NewOverdueNotice(t *store.Task) *store.Message {
	msg := &store.Message{
		ID:        store.GenNewID(),
		Sender:    Sender,
		Recipient: t.AssignedAgent.String(),
		Type:      store.MsgNotification,
		Content:   fmt.Sprintf("Task overdue: %s (due %s)", t.Title, t.DueDate.UTC().Format(time.RFC3339)),
		Timestamp: time.Now().UTC(),
		Priority:  3,
		Metadata:  map[string]any{"task_id": t.ID.String(), "overdue": true},
	}
	return msg
}

// autoAssign pulls the highest-priority available tasks and hands each to
// the least-loaded eligible agent. Agents with autonomy "low" never receive
// auto-assigned work; "medium" agents only below the workload cap; "high"
// agents ignore the cap.
func (s *Scheduler) autoAssign(ctx context.Context) {
	candidates := s.Available(nil)
	if len(candidates) == 0 {
		return
	}
	if len(candidates) > s.cfg.AutoAssignLimit {
		candidates = candidates[:s.cfg.AutoAssignLimit]
	}

	agents := s.eligibleAgents(ctx)
	for _, t := range candidates {
		// Tasks carrying an intended agent go back to that agent.
		if t.AssignedAgent != nil {
			if err := s.Assign(ctx, t.ID, *t.AssignedAgent); err != nil {
				slog.Debug("scheduler: auto-assign to intended agent failed", "task", t.ID, "error", err)
			}
			continue
		}
		best, ok := s.leastLoaded(agents)
		if !ok {
			slog.Debug("scheduler: no eligible agent for auto-assign", "task", t.ID)
			continue
		}
		if err := s.Assign(ctx, t.ID, best); err != nil {
			slog.Debug("scheduler: auto-assign failed", "task", t.ID, "agent", best, "error", err)
		}
	}
}

type candidateAgent struct {
	id       uuid.UUID
	autonomy string
}

// eligibleAgents resolves the live broker registrations to agent rows,
// dropping agents whose autonomy forbids auto-assignment.
func (s *Scheduler) eligibleAgents(ctx context.Context) []candidateAgent {
	var out []candidateAgent
	for _, raw := range s.bus.RegisteredAgents() {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		a, err := s.agents.GetAgent(ctx, id)
		if err != nil {
			continue
		}
		if a.AutonomyLevel == store.AutonomyLow {
			continue
		}
		out = append(out, candidateAgent{id: id, autonomy: a.AutonomyLevel})
	}
	// Stable order so ties break deterministically.
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// leastLoaded picks the agent with the smallest workload, honoring the cap
// for medium-autonomy agents.
func (s *Scheduler) leastLoaded(agents []candidateAgent) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := uuid.Nil
	bestLoad := -1
	for _, a := range agents {
		load := len(s.workloads[a.id])
		if a.autonomy != store.AutonomyHigh && load >= s.cfg.WorkloadCap {
			continue
		}
		if bestLoad < 0 || load < bestLoad {
			best = a.id
			bestLoad = load
		}
	}
	return best, bestLoad >= 0
}
