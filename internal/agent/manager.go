package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/models"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

// Deps are the collaborators every Runtime needs.
type Deps struct {
	Router    *models.Router
	Tools     *tools.Registry
	Bus       *broker.Broker
	Scheduler *scheduler.Scheduler
	Memory    store.MemoryStore
	Events    broker.EventPublisher
}

// Team is an in-memory grouping of agents sharing a broadcast channel.
type Team struct {
	Name    string      `json:"name"`
	Channel string      `json:"channel"`
	Members []uuid.UUID `json:"members"`
	Leader  *uuid.UUID  `json:"leader,omitempty"`
}

// Manager owns the agent lifecycle table.
type Manager struct {
	agents store.AgentStore
	deps   Deps
	cfg    config.AgentsConfig

	mu     sync.Mutex
	active map[uuid.UUID]*Runtime
	teams  map[string]*Team
}

// NewManager creates the lifecycle manager.
func NewManager(agents store.AgentStore, deps Deps, cfg config.AgentsConfig) *Manager {
	return &Manager{
		agents: agents,
		deps:   deps,
		cfg:    cfg,
		active: make(map[uuid.UUID]*Runtime),
		teams:  make(map[string]*Team),
	}
}

// CreateParams are the inputs for Create.
type CreateParams struct {
	Name                string
	Role                string
	ModelID             string
	AllowedTools        []string
	AutonomyLevel       string
	CommunicationRights []string
	MemoryScope         string
}

// Create persists a new agent. The agent is not started.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*store.AgentData, error) {
	if p.Name == "" {
		return nil, fault.New(fault.Validation, "agent name is required")
	}
	if p.ModelID == "" {
		return nil, fault.New(fault.Validation, "model_id is required")
	}
	switch p.AutonomyLevel {
	case "":
		p.AutonomyLevel = store.AutonomyMedium
	case store.AutonomyLow, store.AutonomyMedium, store.AutonomyHigh:
	default:
		return nil, fault.New(fault.Validation, "unknown autonomy level %q", p.AutonomyLevel)
	}
	switch p.MemoryScope {
	case "":
		p.MemoryScope = store.MemoryTaskLimited
	case store.MemoryEphemeral, store.MemoryTaskLimited, store.MemoryPersistent:
	default:
		return nil, fault.New(fault.Validation, "unknown memory scope %q", p.MemoryScope)
	}

	a := &store.AgentData{
		ID:                  store.GenNewID(),
		Name:                p.Name,
		Role:                p.Role,
		ModelID:             p.ModelID,
		AllowedTools:        append([]string(nil), p.AllowedTools...),
		AutonomyLevel:       p.AutonomyLevel,
		CommunicationRights: append([]string(nil), p.CommunicationRights...),
		MemoryScope:         p.MemoryScope,
		CreatedAt:           time.Now().UTC(),
	}
	if err := m.agents.CreateAgent(ctx, a); err != nil {
		return nil, fault.Wrap(err, fault.Transient, "persist agent")
	}
	slog.Info("agent created", "agent", a.ID, "name", a.Name, "model", a.ModelID)
	return a, nil
}

// Start spawns the agent's worker and registers its inbox. Idempotent.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	data, err := m.agents.GetAgent(ctx, id)
	if err != nil {
		return fault.Wrap(err, fault.NotFound, "agent %s", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		return nil
	}
	r := newRuntime(data, m.deps, m.cfg)
	r.start()
	m.active[id] = r
	slog.Info("agent started", "agent", id, "name", data.Name)
	return nil
}

// Stop signals the runtime, waits for it to drain within the configured
// deadline, and unregisters the inbox. Stopping an inactive agent is a no-op.
func (m *Manager) Stop(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	r, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	r.signalStop()

	drain := time.Duration(m.cfg.StopDrainSecs) * time.Second
	if drain <= 0 {
		drain = 10 * time.Second
	}
	select {
	case <-r.done:
	case <-time.After(drain):
		slog.Warn("agent stop drain deadline exceeded", "agent", id)
	case <-ctx.Done():
	}

	m.deps.Bus.Unregister(id.String())
	if m.deps.Events != nil {
		m.deps.Events.Broadcast(broker.Event{Name: broker.EventAgentStopped, Payload: map[string]any{"agent_id": id.String()}})
	}
	slog.Info("agent stopped", "agent", id)
	return nil
}

// Delete stops the agent if active, removes its row, and clears persistent
// memory.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.Stop(ctx, id); err != nil {
		return err
	}
	data, err := m.agents.GetAgent(ctx, id)
	if err != nil {
		return fault.Wrap(err, fault.NotFound, "agent %s", id)
	}
	if err := m.agents.DeleteAgent(ctx, id); err != nil {
		return fault.Wrap(err, fault.Transient, "delete agent %s", id)
	}
	if m.deps.Memory != nil {
		if err := m.deps.Memory.DeleteMemory(ctx, id); err != nil {
			slog.Warn("agent memory cleanup failed", "agent", id, "error", err)
		}
	}

	m.mu.Lock()
	for _, team := range m.teams {
		for i, member := range team.Members {
			if member == id {
				team.Members = append(team.Members[:i], team.Members[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	slog.Info("agent deleted", "agent", id, "name", data.Name)
	return nil
}

// Broadcast posts a broadcast message from sender to every registered agent.
func (m *Manager) Broadcast(ctx context.Context, sender, content string) error {
	msg := broker.NewMessage(sender, store.BroadcastRecipient, store.MsgBroadcast, content)
	return m.deps.Bus.Send(ctx, msg)
}

// CreateTeam subscribes the agents to the team's broadcast channel. The
// optional leader must be a member.
func (m *Manager) CreateTeam(ctx context.Context, name string, agentIDs []uuid.UUID, leader *uuid.UUID) (*Team, error) {
	if name == "" {
		return nil, fault.New(fault.Validation, "team name is required")
	}
	if len(agentIDs) == 0 {
		return nil, fault.New(fault.Validation, "team needs at least one agent")
	}
	if leader != nil {
		found := false
		for _, id := range agentIDs {
			if id == *leader {
				found = true
				break
			}
		}
		if !found {
			return nil, fault.New(fault.Validation, "leader must be a team member")
		}
	}
	for _, id := range agentIDs {
		if _, err := m.agents.GetAgent(ctx, id); err != nil {
			return nil, fault.Wrap(err, fault.NotFound, "agent %s", id)
		}
	}

	channel := "team_" + name
	for _, id := range agentIDs {
		m.deps.Bus.JoinChannel(id.String(), channel)
	}
	team := &Team{
		Name:    name,
		Channel: channel,
		Members: append([]uuid.UUID(nil), agentIDs...),
		Leader:  leader,
	}
	m.mu.Lock()
	m.teams[name] = team
	m.mu.Unlock()
	slog.Info("team created", "team", name, "members", len(agentIDs))
	return team, nil
}

// Team returns a named team.
func (m *Manager) Team(name string) (*Team, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[name]
	return t, ok
}

// Active reports whether the agent has a running worker.
func (m *Manager) Active(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveCount returns the number of running agents.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Runtime returns the live runtime for a started agent.
func (m *Manager) Runtime(id uuid.UUID) (*Runtime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[id]
	return r, ok
}

// Status summarizes one agent for the HTTP surface.
type Status struct {
	Agent        *store.AgentData `json:"agent"`
	Active       bool             `json:"active"`
	QueueSize    int              `json:"queue_size"`
	WorkloadSize int              `json:"workload_size"`
	Workload     []store.Task     `json:"workload"`
}

// Status reports lifecycle state, queue depth, and scheduler workload.
func (m *Manager) Status(ctx context.Context, id uuid.UUID) (*Status, error) {
	data, err := m.agents.GetAgent(ctx, id)
	if err != nil {
		return nil, fault.Wrap(err, fault.NotFound, "agent %s", id)
	}
	workload := m.deps.Scheduler.AgentWorkload(id)
	return &Status{
		Agent:        data,
		Active:       m.Active(id),
		QueueSize:    m.deps.Bus.QueueSize(id.String()),
		WorkloadSize: len(workload),
		Workload:     workload,
	}, nil
}
