package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

type fakeAgentStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]store.AgentData
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{rows: make(map[uuid.UUID]store.AgentData)}
}

func (f *fakeAgentStore) CreateAgent(ctx context.Context, a *store.AgentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeAgentStore) GetAgent(ctx context.Context, id uuid.UUID) (*store.AgentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "agent %s", id)
	}
	return &a, nil
}

func (f *fakeAgentStore) ListAgents(ctx context.Context) ([]store.AgentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.AgentData, 0, len(f.rows))
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAgentStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return fault.New(fault.NotFound, "agent %s", id)
	}
	delete(f.rows, id)
	return nil
}

type fakeTaskStore struct{}

func (fakeTaskStore) InsertTask(ctx context.Context, t *store.Task) error { return nil }
func (fakeTaskStore) UpdateTask(ctx context.Context, t *store.Task) error { return nil }
func (fakeTaskStore) ListTasks(ctx context.Context) ([]store.Task, error) {
	return nil, nil
}

func testManager(t *testing.T) (*Manager, *fakeAgentStore, *broker.Broker) {
	t.Helper()
	agents := newFakeAgentStore()
	bus := broker.New(nil)
	script := &scriptedModel{}
	sched := scheduler.New(fakeTaskStore{}, agents, bus, nil, config.SchedulerConfig{})
	m := NewManager(agents, Deps{
		Router:    script.router(t),
		Tools:     tools.NewRegistry(),
		Bus:       bus,
		Scheduler: sched,
	}, config.AgentsConfig{StopDrainSecs: 2})
	return m, agents, bus
}

func TestManagerCreateValidation(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()
	tests := []struct {
		name string
		p    CreateParams
	}{
		{"missing name", CreateParams{ModelID: "m"}},
		{"missing model", CreateParams{Name: "a"}},
		{"bad autonomy", CreateParams{Name: "a", ModelID: "m", AutonomyLevel: "extreme"}},
		{"bad memory scope", CreateParams{Name: "a", ModelID: "m", MemoryScope: "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Create(ctx, tt.p); fault.KindOf(err) != fault.Validation {
				t.Errorf("err = %v, want Validation", err)
			}
		})
	}
}

func TestManagerCreateDefaults(t *testing.T) {
	m, _, _ := testManager(t)
	a, err := m.Create(context.Background(), CreateParams{Name: "worker", ModelID: "test-model"})
	if err != nil {
		t.Fatal(err)
	}
	if a.AutonomyLevel != store.AutonomyMedium {
		t.Errorf("autonomy = %q, want medium", a.AutonomyLevel)
	}
	if a.MemoryScope != store.MemoryTaskLimited {
		t.Errorf("memory scope = %q, want task_limited", a.MemoryScope)
	}
	if a.ID == uuid.Nil {
		t.Error("ID not assigned")
	}
}

func TestManagerStartStop(t *testing.T) {
	m, _, bus := testManager(t)
	ctx := context.Background()
	a, err := m.Create(ctx, CreateParams{Name: "worker", ModelID: "test-model"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Start(ctx, a.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Active(a.ID) || m.ActiveCount() != 1 {
		t.Error("agent not active after Start")
	}
	if !bus.Registered(a.ID.String()) {
		t.Error("inbox not registered after Start")
	}
	// Idempotent.
	if err := m.Start(ctx, a.ID); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d after double start", m.ActiveCount())
	}

	if err := m.Stop(ctx, a.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Active(a.ID) {
		t.Error("agent still active after Stop")
	}
	if bus.Registered(a.ID.String()) {
		t.Error("inbox still registered after Stop")
	}
	// Stopping again is a no-op.
	if err := m.Stop(ctx, a.ID); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestManagerStartUnknown(t *testing.T) {
	m, _, _ := testManager(t)
	if err := m.Start(context.Background(), store.GenNewID()); fault.KindOf(err) != fault.NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestManagerDelete(t *testing.T) {
	m, agents, _ := testManager(t)
	mem := &memoryRecorder{}
	m.deps.Memory = mem
	ctx := context.Background()

	a, err := m.Create(ctx, CreateParams{Name: "worker", ModelID: "test-model"})
	if err != nil {
		t.Fatal(err)
	}
	mem.AppendMemory(ctx, &store.MemoryRecord{AgentID: a.ID, Content: "note"})
	if err := m.Start(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateTeam(ctx, "squad", []uuid.UUID{a.ID}, nil); err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := agents.GetAgent(ctx, a.ID); fault.KindOf(err) != fault.NotFound {
		t.Error("agent row not deleted")
	}
	if len(mem.recs) != 0 {
		t.Error("persistent memory not cleared")
	}
	team, _ := m.Team("squad")
	if len(team.Members) != 0 {
		t.Errorf("team members = %v after member deletion", team.Members)
	}
}

func TestManagerBroadcast(t *testing.T) {
	m, _, bus := testManager(t)
	bus.Register("a1")
	bus.Register("a2")

	if err := m.Broadcast(context.Background(), "user", "standup time"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a1", "a2"} {
		msg, err := bus.Receive(context.Background(), id, time.Second)
		if err != nil || msg == nil {
			t.Fatalf("Receive(%s) = (%v, %v)", id, msg, err)
		}
		if msg.Type != store.MsgBroadcast || msg.Content != "standup time" {
			t.Errorf("%s got %+v", id, msg)
		}
	}
}

func TestManagerCreateTeam(t *testing.T) {
	m, _, bus := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, CreateParams{Name: "lead", ModelID: "test-model"})
	b, _ := m.Create(ctx, CreateParams{Name: "member", ModelID: "test-model"})
	bus.Register(a.ID.String())
	bus.Register(b.ID.String())

	tests := []struct {
		name   string
		team   string
		ids    []uuid.UUID
		leader *uuid.UUID
		want   fault.Kind
	}{
		{"empty name", "", []uuid.UUID{a.ID}, nil, fault.Validation},
		{"no members", "x", nil, nil, fault.Validation},
		{"leader outside team", "x", []uuid.UUID{a.ID}, &b.ID, fault.Validation},
		{"unknown member", "x", []uuid.UUID{store.GenNewID()}, nil, fault.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.CreateTeam(ctx, tt.team, tt.ids, tt.leader); fault.KindOf(err) != tt.want {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	team, err := m.CreateTeam(ctx, "research", []uuid.UUID{a.ID, b.ID}, &a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if team.Channel != "team_research" {
		t.Errorf("channel = %q", team.Channel)
	}

	// Members hear channel traffic; the sender does not.
	msg := broker.NewMessage(a.ID.String(), "#team_research", store.MsgNotification, "kickoff")
	if err := bus.Send(ctx, msg); err != nil {
		t.Fatal(err)
	}
	got, err := bus.Receive(ctx, b.ID.String(), time.Second)
	if err != nil || got == nil || got.Content != "kickoff" {
		t.Fatalf("member receive = (%v, %v)", got, err)
	}
	if n := bus.QueueSize(a.ID.String()); n != 0 {
		t.Errorf("sender queue = %d, want 0", n)
	}
}

func TestManagerStatus(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, CreateParams{Name: "worker", ModelID: "test-model"})
	if err := m.Start(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	defer m.Stop(ctx, a.ID)

	st, err := m.Status(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Active || st.Agent.Name != "worker" {
		t.Errorf("status = %+v", st)
	}
	if st.WorkloadSize != 0 || st.QueueSize != 0 {
		t.Errorf("fresh agent status = %+v", st)
	}

	if _, err := m.Status(ctx, store.GenNewID()); fault.KindOf(err) != fault.NotFound {
		t.Errorf("unknown agent: err = %v, want NotFound", err)
	}
}
