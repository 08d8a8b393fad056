// Package store defines the persisted row types and storage interfaces for
// swarmd. Backends live in subpackages; the rest of the system depends only
// on the interfaces here.
package store

import (
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a time-ordered UUID (v7) for new rows.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// BroadcastRecipient is the reserved recipient meaning "every registered
// agent except the sender".
const BroadcastRecipient = "ALL"

// --- Agents ---

// Autonomy levels control how aggressively the scheduler auto-assigns work.
const (
	AutonomyLow    = "low"    // never auto-assigned
	AutonomyMedium = "medium" // auto-assigned under the workload cap
	AutonomyHigh   = "high"   // auto-assigned ignoring the cap
)

// Memory scopes control what an agent retains across invocations.
const (
	MemoryEphemeral   = "ephemeral"
	MemoryTaskLimited = "task_limited"
	MemoryPersistent  = "persistent"
)

// Communication rights.
const (
	CommAgentToAgent = "agent_to_agent"
	CommAgentToUser  = "agent_to_user"
)

// AgentData is the persisted configuration of an agent. Runtime state
// (inbox, worker) is not persisted; it lives in the agent manager.
type AgentData struct {
	ID                  uuid.UUID `json:"agent_id"`
	Name                string    `json:"name"`
	Role                string    `json:"role"`
	ModelID             string    `json:"model_id"`
	AllowedTools        []string  `json:"allowed_tools"`
	AutonomyLevel       string    `json:"autonomy_level"`
	CommunicationRights []string  `json:"communication_rights"`
	MemoryScope         string    `json:"memory_scope"`
	CreatedAt           time.Time `json:"created_at"`
}

// --- Tasks ---

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskBlocked    TaskStatus = "blocked"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ValidTaskStatus reports whether s names a known status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskAssigned, TaskInProgress, TaskCompleted,
		TaskFailed, TaskCancelled, TaskBlocked:
		return true
	}
	return false
}

// TaskPriority orders tasks for assignment. Higher is more urgent.
type TaskPriority int

const (
	PriorityLow      TaskPriority = 1
	PriorityMedium   TaskPriority = 2
	PriorityHigh     TaskPriority = 3
	PriorityCritical TaskPriority = 4
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// ParsePriority maps a priority name to its value. Unknown names return
// medium and false.
func ParsePriority(s string) (TaskPriority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "medium", "":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	case "critical":
		return PriorityCritical, true
	}
	return PriorityMedium, false
}

// Task is a unit of work with dependencies, priority, progress, and a result.
type Task struct {
	ID            uuid.UUID      `json:"task_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	AssignedAgent *uuid.UUID     `json:"assigned_agent,omitempty"`
	CreatedBy     string         `json:"created_by"`
	Status        TaskStatus     `json:"status"`
	Priority      TaskPriority   `json:"priority"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	Dependencies  []uuid.UUID    `json:"dependencies"`
	Subtasks      []uuid.UUID    `json:"subtasks"`
	ParentTask    *uuid.UUID     `json:"parent_task,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	Progress      float64        `json:"progress"`
	Result        *string        `json:"result,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
}

// Clone returns a deep copy so callers can hand tasks across goroutines.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = append([]uuid.UUID(nil), t.Dependencies...)
	c.Subtasks = append([]uuid.UUID(nil), t.Subtasks...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// --- Messages ---

// MessageType classifies broker messages.
type MessageType string

const (
	MsgRequest        MessageType = "request"
	MsgResponse       MessageType = "response"
	MsgNotification   MessageType = "notification"
	MsgTaskAssignment MessageType = "task_assignment"
	MsgTaskCompletion MessageType = "task_completion"
	MsgBroadcast      MessageType = "broadcast"
	MsgSystem         MessageType = "system"
)

// ParseMessageType maps a wire name to a MessageType. Unknown names return
// false; callers must reject them rather than defaulting.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case MsgRequest, MsgResponse, MsgNotification, MsgTaskAssignment,
		MsgTaskCompletion, MsgBroadcast, MsgSystem:
		return MessageType(s), true
	}
	return "", false
}

// Message is an immutable broker message. Sender and Recipient are agent IDs
// in string form, the literal "ALL", or a "#channel" name.
type Message struct {
	ID               uuid.UUID      `json:"id"`
	Sender           string         `json:"sender"`
	Recipient        string         `json:"recipient"`
	Type             MessageType    `json:"message_type"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	ConversationID   *uuid.UUID     `json:"conversation_id,omitempty"`
	RequiresResponse bool           `json:"requires_response"`
	Priority         int            `json:"priority"` // 1=low 2=medium 3=high
}

// --- Agent memory / knowledge / logs ---

// MemoryRecord is a persisted agent memory entry.
type MemoryRecord struct {
	ID           int64          `json:"id"`
	AgentID      uuid.UUID      `json:"agent_id"`
	MemoryType   string         `json:"memory_type"`
	Content      string         `json:"content"`
	Importance   float64        `json:"importance"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Embedding    []byte         `json:"-"`
}

// KnowledgeRecord is a persisted knowledge-base entry. Forward-declared
// persistence: nothing in the core reads these yet.
type KnowledgeRecord struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	SourceURL  string         `json:"source_url"`
	SourceType string         `json:"source_type"`
	ScrapedAt  time.Time      `json:"scraped_at"`
	Embedding  []byte         `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	CreatedBy  string         `json:"created_by"`
}

// LogRecord is a persisted system log row.
type LogRecord struct {
	ID        int64          `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Module    string         `json:"module"`
	AgentID   *uuid.UUID     `json:"agent_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
