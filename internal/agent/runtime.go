package agent

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/models"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

// Runtime is one started agent: an inbox-driven worker goroutine plus the
// synchronous Think entry point.
type Runtime struct {
	data    *store.AgentData
	router  *models.Router
	toolset *tools.Registry
	bus     *broker.Broker
	sched   *scheduler.Scheduler
	memory  store.MemoryStore
	events  broker.EventPublisher
	cfg     config.AgentsConfig

	inbox      *broker.Inbox
	memorySeed []string

	stopFlag atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newRuntime(data *store.AgentData, deps Deps, cfg config.AgentsConfig) *Runtime {
	return &Runtime{
		data:    data,
		router:  deps.Router,
		toolset: deps.Tools,
		bus:     deps.Bus,
		sched:   deps.Scheduler,
		memory:  deps.Memory,
		events:  deps.Events,
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

// start registers the inbox, loads the memory seed for persistent-scope
// agents, and launches the worker.
func (r *Runtime) start() {
	r.inbox = r.bus.Register(r.data.ID.String())

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if r.data.MemoryScope == store.MemoryPersistent && r.memory != nil {
		recs, err := r.memory.ListMemory(ctx, r.data.ID, 10)
		if err != nil {
			slog.Warn("agent: memory load failed", "agent", r.data.ID, "error", err)
		}
		for _, rec := range recs {
			r.memorySeed = append(r.memorySeed, rec.Content)
		}
	}

	go r.work(ctx)
	r.emit(broker.EventAgentStarted, map[string]any{"agent_id": r.data.ID.String(), "name": r.data.Name})
}

// signalStop interrupts Think at the next iteration boundary and cancels the
// worker context.
func (r *Runtime) signalStop() {
	r.stopFlag.Store(true)
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) stopped() bool { return r.stopFlag.Load() }

// work is the inbox-driven loop. It exits when the context is cancelled or
// the inbox is closed by Unregister.
func (r *Runtime) work(ctx context.Context) {
	defer close(r.done)
	id := r.data.ID.String()
	for {
		msg, err := r.inbox.Pop(ctx, 0)
		if err != nil {
			return // context cancelled
		}
		if msg == nil {
			return // inbox closed
		}
		slog.Debug("agent: message received", "agent", id, "from", msg.Sender, "type", msg.Type)
		r.handle(ctx, msg)
	}
}

func (r *Runtime) handle(ctx context.Context, msg *store.Message) {
	switch msg.Type {
	case store.MsgTaskAssignment:
		r.handleAssignment(ctx, msg)
	case store.MsgRequest:
		r.handleRequest(ctx, msg)
	default:
		slog.Debug("agent: message noted", "agent", r.data.ID, "type", msg.Type, "from", msg.Sender)
		r.remember(ctx, "message", msg.Content)
	}
}

// handleAssignment runs the reason-act loop over the assigned task and
// reports the outcome through the scheduler.
func (r *Runtime) handleAssignment(ctx context.Context, msg *store.Message) {
	rawID, _ := msg.Metadata["task_id"].(string)
	taskID, err := uuid.Parse(rawID)
	if err != nil {
		slog.Warn("agent: assignment without task_id", "agent", r.data.ID, "message", msg.ID)
		return
	}

	if err := r.sched.UpdateProgress(ctx, taskID, 0.1, nil); err != nil {
		slog.Warn("agent: progress update failed", "agent", r.data.ID, "task", taskID, "error", err)
	}

	task, err := r.sched.Get(taskID)
	prompt := msg.Content
	if err == nil && task.Description != "" {
		prompt = task.Description
	}

	answer := r.Think(ctx, prompt, 0)
	if answer == CancelledSentinel {
		return
	}
	if err := r.sched.Complete(ctx, taskID, &answer); err != nil {
		slog.Warn("agent: task completion failed", "agent", r.data.ID, "task", taskID, "error", err)
	}
}

// handleRequest runs Think over the request content and, when a response is
// required, posts it back to the sender preserving the conversation.
func (r *Runtime) handleRequest(ctx context.Context, msg *store.Message) {
	answer := r.Think(ctx, msg.Content, 0)
	if answer == CancelledSentinel || !msg.RequiresResponse {
		return
	}
	resp := broker.NewMessage(r.data.ID.String(), msg.Sender, store.MsgResponse, answer)
	resp.ConversationID = msg.ConversationID
	if err := r.bus.Send(ctx, resp); err != nil {
		slog.Warn("agent: response send failed", "agent", r.data.ID, "to", msg.Sender, "error", err)
	}
}

func (r *Runtime) emit(name string, payload map[string]any) {
	if r.events == nil {
		return
	}
	r.events.Broadcast(broker.Event{Name: name, Payload: payload})
}
