package store

import (
	"context"

	"github.com/google/uuid"
)

// AgentStore persists agent configuration rows.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *AgentData) error
	GetAgent(ctx context.Context, id uuid.UUID) (*AgentData, error)
	ListAgents(ctx context.Context) ([]AgentData, error)
	DeleteAgent(ctx context.Context, id uuid.UUID) error
}

// TaskStore persists task rows. The scheduler is the single writer; rows are
// retained after terminal transitions for audit.
type TaskStore interface {
	InsertTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t *Task) error
	// ListTasks returns every row, terminal included, used to rebuild
	// scheduler state after a restart.
	ListTasks(ctx context.Context) ([]Task, error)
}

// MessageStore is the broker's audit log.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *Message) error
	// ConversationHistory returns up to limit messages for a conversation in
	// chronological order.
	ConversationHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	// AgentMessages returns up to limit messages addressed to the agent in
	// chronological order.
	AgentMessages(ctx context.Context, agentID string, limit int) ([]Message, error)
}

// MemoryStore persists agent memory entries.
type MemoryStore interface {
	AppendMemory(ctx context.Context, rec *MemoryRecord) error
	ListMemory(ctx context.Context, agentID uuid.UUID, limit int) ([]MemoryRecord, error)
	DeleteMemory(ctx context.Context, agentID uuid.UUID) error
}

// KnowledgeStore persists knowledge-base entries.
type KnowledgeStore interface {
	InsertKnowledge(ctx context.Context, rec *KnowledgeRecord) error
}

// LogStore persists system log rows.
type LogStore interface {
	AppendLog(ctx context.Context, rec *LogRecord) error
}

// Pinger reports backend liveness for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Agents    AgentStore
	Tasks     TaskStore
	Messages  MessageStore
	Memory    MemoryStore
	Knowledge KnowledgeStore
	Logs      LogStore
	Health    Pinger
}
