// Package scheduler is the authority over task state: CRUD, the dependency
// DAG, priority ordering, auto-assignment, and completion fan-out.
//
// All in-memory state is guarded by a single mutex so no two transitions for
// the same task can interleave. The store is written before memory is
// updated; a persistence failure rolls the transition back. Broker posts
// happen after a successful transition and are best-effort — a failed
// notification is logged, never rolled back.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// Sender is the broker sender ID used for scheduler-originated messages.
const Sender = "scheduler"

// Scheduler coordinates tasks across agents.
type Scheduler struct {
	tasks  store.TaskStore
	agents store.AgentStore
	bus    *broker.Broker
	events broker.EventPublisher // nil disables event emission
	cfg    config.SchedulerConfig

	mu        sync.Mutex
	byID      map[uuid.UUID]*store.Task
	workloads map[uuid.UUID][]uuid.UUID // agent -> non-terminal assigned task IDs

	loopMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. Call Start to load persisted state and begin the
// periodic cycle.
func New(tasks store.TaskStore, agents store.AgentStore, bus *broker.Broker, events broker.EventPublisher, cfg config.SchedulerConfig) *Scheduler {
	if cfg.CycleSeconds <= 0 {
		cfg.CycleSeconds = 60
	}
	if cfg.AutoAssignLimit <= 0 {
		cfg.AutoAssignLimit = 5
	}
	if cfg.WorkloadCap <= 0 {
		cfg.WorkloadCap = 3
	}
	return &Scheduler{
		tasks:     tasks,
		agents:    agents,
		bus:       bus,
		events:    events,
		cfg:       cfg,
		byID:      make(map[uuid.UUID]*store.Task),
		workloads: make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateParams are the inputs for Create.
type CreateParams struct {
	Title         string
	Description   string
	CreatedBy     string
	AssignedAgent *uuid.UUID
	Priority      store.TaskPriority
	DueDate       *time.Time
	Dependencies  []uuid.UUID
	ParentTask    *uuid.UUID
	Metadata      map[string]any
}

// Create persists a new pending task. Dependencies must exist and the
// resulting graph must stay acyclic. If AssignedAgent is set, assignment is
// attempted immediately; a dependency block is not an error here.
func (s *Scheduler) Create(ctx context.Context, p CreateParams) (*store.Task, error) {
	if p.Title == "" {
		return nil, fault.New(fault.Validation, "task title is required")
	}
	if p.CreatedBy == "" {
		return nil, fault.New(fault.Validation, "created_by is required")
	}
	if p.Priority == 0 {
		p.Priority = store.PriorityMedium
	}

	now := time.Now().UTC()
	t := &store.Task{
		ID:           store.GenNewID(),
		Title:        p.Title,
		Description:  p.Description,
		CreatedBy:    p.CreatedBy,
		Status:       store.TaskPending,
		Priority:     p.Priority,
		CreatedAt:    now,
		UpdatedAt:    now,
		DueDate:      p.DueDate,
		Dependencies: append([]uuid.UUID(nil), p.Dependencies...),
		ParentTask:   p.ParentTask,
		Metadata:     p.Metadata,
	}

	s.mu.Lock()
	for _, dep := range t.Dependencies {
		if _, ok := s.byID[dep]; !ok {
			s.mu.Unlock()
			return nil, fault.New(fault.Validation, "dependency %s does not exist", dep)
		}
	}
	if s.wouldCycleLocked(t.ID, t.Dependencies) {
		s.mu.Unlock()
		return nil, fault.New(fault.Conflict, "dependencies would create a cycle")
	}
	var parent *store.Task
	if t.ParentTask != nil {
		var ok bool
		parent, ok = s.byID[*t.ParentTask]
		if !ok {
			s.mu.Unlock()
			return nil, fault.New(fault.Validation, "parent task %s does not exist", *t.ParentTask)
		}
	}

	if err := s.tasks.InsertTask(ctx, t); err != nil {
		s.mu.Unlock()
		return nil, fault.Wrap(err, fault.Transient, "persist task")
	}
	s.byID[t.ID] = t

	if parent != nil {
		parent.Subtasks = append(parent.Subtasks, t.ID)
		parent.UpdatedAt = now
		if err := s.tasks.UpdateTask(ctx, parent); err != nil {
			slog.Warn("scheduler: persist parent subtasks failed", "task", parent.ID, "error", err)
		}
	}
	s.mu.Unlock()

	slog.Info("scheduler: task created", "task", t.ID, "title", t.Title, "priority", t.Priority)
	s.emit(broker.EventTaskCreated, t)

	if p.AssignedAgent != nil {
		if err := s.Assign(ctx, t.ID, *p.AssignedAgent); err != nil {
			// A dependency block at creation time is expected; the unblock
			// sweep will pick the task up later.
			if !fault.IsKind(err, fault.Conflict) {
				return t.Clone(), err
			}
		}
	}
	return s.Get(t.ID)
}

// Assign binds a task to an agent and posts a task_assignment message.
// Unmet dependencies block the task instead (recording the intended agent so
// the unblock sweep can re-assign) and return a Conflict error.
func (s *Scheduler) Assign(ctx context.Context, taskID, agentID uuid.UUID) error {
	if _, err := s.agents.GetAgent(ctx, agentID); err != nil {
		return fault.Wrap(err, fault.NotFound, "agent %s", agentID)
	}

	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		s.mu.Unlock()
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}

	if !s.depsSatisfiedLocked(t) {
		updated := t.Clone()
		updated.Status = store.TaskBlocked
		updated.AssignedAgent = &agentID
		updated.UpdatedAt = time.Now().UTC()
		if err := s.tasks.UpdateTask(ctx, updated); err != nil {
			s.mu.Unlock()
			return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
		}
		*t = *updated
		s.mu.Unlock()
		slog.Info("scheduler: task blocked on dependencies", "task", taskID, "agent", agentID)
		s.emit(broker.EventTaskBlocked, t)
		return fault.New(fault.Conflict, "task %s has unmet dependencies", taskID)
	}

	updated := t.Clone()
	if prev := updated.AssignedAgent; prev != nil && *prev != agentID {
		s.removeWorkloadLocked(*prev, taskID)
	}
	updated.AssignedAgent = &agentID
	updated.Status = store.TaskAssigned
	updated.Progress = 0
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		s.mu.Unlock()
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	*t = *updated
	s.addWorkloadLocked(agentID, taskID)
	msg := s.assignmentMessageLocked(t, agentID)
	s.mu.Unlock()

	slog.Info("scheduler: task assigned", "task", taskID, "agent", agentID)
	s.emit(broker.EventTaskAssigned, t)
	if err := s.bus.Send(ctx, msg); err != nil {
		slog.Warn("scheduler: assignment message failed", "task", taskID, "agent", agentID, "error", err)
	}
	return nil
}

func (s *Scheduler) assignmentMessageLocked(t *store.Task, agentID uuid.UUID) *store.Message {
	msg := broker.NewMessage(Sender, agentID.String(), store.MsgTaskAssignment,
		fmt.Sprintf("New task assigned: %s\n\nDescription: %s", t.Title, t.Description))
	msg.Priority = 2
	msg.Metadata = map[string]any{
		"task_id":  t.ID.String(),
		"priority": int(t.Priority),
	}
	if t.DueDate != nil {
		msg.Metadata["due_date"] = t.DueDate.UTC().Format(time.RFC3339)
	}
	return msg
}

// UpdateProgress clamps progress to [0,1] and derives the status when the
// caller does not supply one. Progress may not decrease within an
// assignment; a new assignment resets it to zero. Explicit failed or
// cancelled statuses route through Fail/Cancel so workload accounting and
// creator fan-out stay on one path.
func (s *Scheduler) UpdateProgress(ctx context.Context, taskID uuid.UUID, progress float64, status *store.TaskStatus) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if status != nil {
		if !store.ValidTaskStatus(*status) {
			return fault.New(fault.Validation, "unknown status %q", *status)
		}
		switch *status {
		case store.TaskFailed:
			return s.Fail(ctx, taskID, "marked failed via progress update")
		case store.TaskCancelled:
			return s.Cancel(ctx, taskID)
		}
		if progress >= 1.0 && *status != store.TaskCompleted {
			return fault.New(fault.Validation, "progress 1.0 requires status completed, got %q", *status)
		}
	}

	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		s.mu.Unlock()
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}
	if progress < t.Progress {
		s.mu.Unlock()
		return fault.New(fault.Validation, "progress may not decrease (%.2f < %.2f)", progress, t.Progress)
	}

	updated := t.Clone()
	updated.Progress = progress
	switch {
	case status != nil:
		updated.Status = *status
	case progress >= 1.0:
		updated.Status = store.TaskCompleted
	case progress > 0:
		updated.Status = store.TaskInProgress
	}
	if updated.Status == store.TaskCompleted {
		updated.Progress = 1.0
	}
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		s.mu.Unlock()
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	completed := t.Status != store.TaskCompleted && updated.Status == store.TaskCompleted
	*t = *updated
	if completed && t.AssignedAgent != nil {
		s.removeWorkloadLocked(*t.AssignedAgent, taskID)
	}
	s.mu.Unlock()

	slog.Debug("scheduler: progress updated", "task", taskID, "progress", progress, "status", t.Status)
	s.emit(broker.EventTaskProgress, t)
	if completed {
		s.emit(broker.EventTaskCompleted, t)
		s.finishTask(ctx, taskID, nil)
	}
	return nil
}

// Complete marks a task completed, posts a task_completion to the creator
// (when distinct from the assignee), and runs the unblock sweep.
func (s *Scheduler) Complete(ctx context.Context, taskID uuid.UUID, result *string) error {
	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		s.mu.Unlock()
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}

	updated := t.Clone()
	updated.Status = store.TaskCompleted
	updated.Progress = 1.0
	updated.Result = result
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		s.mu.Unlock()
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	*t = *updated
	if t.AssignedAgent != nil {
		s.removeWorkloadLocked(*t.AssignedAgent, taskID)
	}
	s.mu.Unlock()

	slog.Info("scheduler: task completed", "task", taskID)
	s.emit(broker.EventTaskCompleted, t)
	s.finishTask(ctx, taskID, result)
	return nil
}

// finishTask runs post-completion fan-out: creator notification and the
// unblock sweep. Split from Complete so progress-driven completion shares it.
func (s *Scheduler) finishTask(ctx context.Context, taskID uuid.UUID, result *string) {
	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	var notify *store.Message
	assignee := ""
	if t.AssignedAgent != nil {
		assignee = t.AssignedAgent.String()
	}
	if t.CreatedBy != assignee {
		notify = broker.NewMessage(Sender, t.CreatedBy, store.MsgTaskCompletion,
			fmt.Sprintf("Task completed: %s", t.Title))
		notify.Metadata = map[string]any{"task_id": t.ID.String()}
		if result != nil {
			notify.Metadata["result"] = *result
		} else if t.Result != nil {
			notify.Metadata["result"] = *t.Result
		}
	}
	s.mu.Unlock()

	if notify != nil {
		if err := s.bus.Send(ctx, notify); err != nil {
			slog.Warn("scheduler: completion message failed", "task", taskID, "error", err)
		}
	}
	s.unblockReady(ctx)
}

// Fail marks a task failed and notifies the creator.
func (s *Scheduler) Fail(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		s.mu.Unlock()
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}

	updated := t.Clone()
	updated.Status = store.TaskFailed
	updated.ErrorMessage = &errMsg
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		s.mu.Unlock()
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	*t = *updated
	if t.AssignedAgent != nil {
		s.removeWorkloadLocked(*t.AssignedAgent, taskID)
	}
	msg := broker.NewMessage(Sender, t.CreatedBy, store.MsgNotification,
		fmt.Sprintf("Task failed: %s\nError: %s", t.Title, errMsg))
	msg.Metadata = map[string]any{"task_id": t.ID.String(), "error": errMsg}
	s.mu.Unlock()

	slog.Warn("scheduler: task failed", "task", taskID, "error", errMsg)
	s.emit(broker.EventTaskFailed, t)
	if err := s.bus.Send(ctx, msg); err != nil {
		slog.Warn("scheduler: failure message failed", "task", taskID, "error", err)
	}
	return nil
}

// Cancel transitions any non-terminal task to cancelled.
func (s *Scheduler) Cancel(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	t, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		s.mu.Unlock()
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}

	updated := t.Clone()
	updated.Status = store.TaskCancelled
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		s.mu.Unlock()
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	*t = *updated
	if t.AssignedAgent != nil {
		s.removeWorkloadLocked(*t.AssignedAgent, taskID)
	}
	s.mu.Unlock()

	slog.Info("scheduler: task cancelled", "task", taskID)
	return nil
}

// SetDependencies replaces a task's dependency set. All dependencies must
// exist and the resulting graph must stay acyclic.
func (s *Scheduler) SetDependencies(ctx context.Context, taskID uuid.UUID, deps []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[taskID]
	if !ok {
		return fault.New(fault.NotFound, "task %s", taskID)
	}
	if t.Status.Terminal() {
		return fault.New(fault.Conflict, "task %s is %s", taskID, t.Status)
	}
	for _, dep := range deps {
		if dep == taskID {
			return fault.New(fault.Conflict, "task cannot depend on itself")
		}
		if _, ok := s.byID[dep]; !ok {
			return fault.New(fault.Validation, "dependency %s does not exist", dep)
		}
	}
	if s.wouldCycleLocked(taskID, deps) {
		return fault.New(fault.Conflict, "dependencies would create a cycle")
	}

	updated := t.Clone()
	updated.Dependencies = append([]uuid.UUID(nil), deps...)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, updated); err != nil {
		return fault.Wrap(err, fault.Transient, "persist task %s", taskID)
	}
	*t = *updated
	return nil
}

// unblockReady transitions blocked tasks whose dependencies are now all
// completed back to pending, re-assigning those that carry an intended agent.
// Runs after every completion and once per scheduler cycle, so tasks blocked
// before a restart recover even though their dependency completed in a
// previous process.
func (s *Scheduler) unblockReady(ctx context.Context) {
	type reassign struct {
		task  uuid.UUID
		agent uuid.UUID
	}
	var reassigns []reassign

	s.mu.Lock()
	for _, t := range s.byID {
		if t.Status != store.TaskBlocked || !s.depsSatisfiedLocked(t) {
			continue
		}
		updated := t.Clone()
		updated.Status = store.TaskPending
		updated.UpdatedAt = time.Now().UTC()
		if err := s.tasks.UpdateTask(ctx, updated); err != nil {
			slog.Warn("scheduler: persist unblock failed", "task", t.ID, "error", err)
			continue
		}
		*t = *updated
		slog.Info("scheduler: task unblocked", "task", t.ID)
		if t.AssignedAgent != nil {
			reassigns = append(reassigns, reassign{task: t.ID, agent: *t.AssignedAgent})
		}
	}
	s.mu.Unlock()

	for _, r := range reassigns {
		if err := s.Assign(ctx, r.task, r.agent); err != nil {
			slog.Warn("scheduler: re-assign after unblock failed", "task", r.task, "agent", r.agent, "error", err)
		}
	}
}

// depsSatisfiedLocked reports whether every dependency is completed. Unknown
// dependency IDs count as unsatisfied.
func (s *Scheduler) depsSatisfiedLocked(t *store.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := s.byID[dep]
		if !ok || d.Status != store.TaskCompleted {
			return false
		}
	}
	return true
}

// wouldCycleLocked reports whether making taskID depend on deps closes a
// cycle, via depth-first walk over the existing dependency edges.
func (s *Scheduler) wouldCycleLocked(taskID uuid.UUID, deps []uuid.UUID) bool {
	seen := make(map[uuid.UUID]bool)
	var walk func(id uuid.UUID) bool
	walk = func(id uuid.UUID) bool {
		if id == taskID {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		if t, ok := s.byID[id]; ok {
			for _, d := range t.Dependencies {
				if walk(d) {
					return true
				}
			}
		}
		return false
	}
	for _, d := range deps {
		if walk(d) {
			return true
		}
	}
	return false
}

// Available returns pending tasks whose dependencies are satisfied, sorted
// by priority (desc) then creation time (asc) then task ID. With agentID
// set, the result is restricted to unassigned tasks or tasks already bound
// to that agent.
func (s *Scheduler) Available(agentID *uuid.UUID) []store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Task
	for _, t := range s.byID {
		if t.Status != store.TaskPending || !s.depsSatisfiedLocked(t) {
			continue
		}
		if agentID != nil && t.AssignedAgent != nil && *t.AssignedAgent != *agentID {
			continue
		}
		out = append(out, *t.Clone())
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []store.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})
}

// BreakDown creates one subtask per description, inheriting the parent's
// priority.
func (s *Scheduler) BreakDown(ctx context.Context, taskID uuid.UUID, descriptions []string, createdBy string) ([]store.Task, error) {
	s.mu.Lock()
	parent, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return nil, fault.New(fault.NotFound, "task %s", taskID)
	}
	title := parent.Title
	priority := parent.Priority
	s.mu.Unlock()

	subtasks := make([]store.Task, 0, len(descriptions))
	for i, desc := range descriptions {
		t, err := s.Create(ctx, CreateParams{
			Title:       fmt.Sprintf("%s - Subtask %d", title, i+1),
			Description: desc,
			CreatedBy:   createdBy,
			Priority:    priority,
			ParentTask:  &taskID,
			Metadata:    map[string]any{"subtask_index": i},
		})
		if err != nil {
			return subtasks, err
		}
		subtasks = append(subtasks, *t)
	}
	slog.Info("scheduler: task broken down", "task", taskID, "subtasks", len(subtasks))
	return subtasks, nil
}

// AgentWorkload returns the non-terminal tasks assigned to an agent.
func (s *Scheduler) AgentWorkload(agentID uuid.UUID) []store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.workloads[agentID]
	out := make([]store.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.byID[id]; ok {
			out = append(out, *t.Clone())
		}
	}
	return out
}

// Get returns a copy of a task.
func (s *Scheduler) Get(taskID uuid.UUID) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[taskID]
	if !ok {
		return nil, fault.New(fault.NotFound, "task %s", taskID)
	}
	return t.Clone(), nil
}

// List returns tasks matching the optional status and assignee filters,
// newest first.
func (s *Scheduler) List(status *store.TaskStatus, agentID *uuid.UUID) []store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Task
	for _, t := range s.byID {
		if status != nil && t.Status != *status {
			continue
		}
		if agentID != nil && (t.AssignedAgent == nil || *t.AssignedAgent != *agentID) {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Count returns the number of tracked tasks.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Scheduler) addWorkloadLocked(agentID, taskID uuid.UUID) {
	for _, id := range s.workloads[agentID] {
		if id == taskID {
			return
		}
	}
	s.workloads[agentID] = append(s.workloads[agentID], taskID)
}

func (s *Scheduler) removeWorkloadLocked(agentID, taskID uuid.UUID) {
	ids := s.workloads[agentID]
	for i, id := range ids {
		if id == taskID {
			s.workloads[agentID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) emit(name string, t *store.Task) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(broker.Event{Name: name, Payload: map[string]any{
		"task_id": t.ID.String(),
		"status":  t.Status,
	}})
}
