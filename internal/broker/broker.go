// Package broker implements the in-process message broker: one unbounded
// FIFO inbox per registered agent, direct + broadcast + channel delivery,
// conversation grouping, and audit persistence.
//
// Delivery is at-least-once to each live inbox. Ordering is FIFO per
// (sender, recipient) pair; there is no global order across senders.
package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// ChannelPrefix marks a recipient as a broadcast channel name.
const ChannelPrefix = "#"

// Broker routes messages between registered agents.
type Broker struct {
	audit store.MessageStore // nil disables audit persistence

	mu            sync.RWMutex
	inboxes       map[string]*Inbox
	conversations map[uuid.UUID][]string
	channels      map[string]map[string]struct{}
}

// New creates a broker. audit may be nil (no persistence).
func New(audit store.MessageStore) *Broker {
	return &Broker{
		audit:         audit,
		inboxes:       make(map[string]*Inbox),
		conversations: make(map[uuid.UUID][]string),
		channels:      make(map[string]map[string]struct{}),
	}
}

// Register idempotently creates an inbox for the agent and returns it.
func (b *Broker) Register(agentID string) *Inbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	if in, ok := b.inboxes[agentID]; ok {
		return in
	}
	in := newInbox()
	b.inboxes[agentID] = in
	slog.Info("broker: agent registered", "agent", agentID)
	return in
}

// Unregister removes the agent's inbox. Undelivered messages are dropped.
func (b *Broker) Unregister(agentID string) {
	b.mu.Lock()
	in, ok := b.inboxes[agentID]
	if ok {
		delete(b.inboxes, agentID)
	}
	for _, members := range b.channels {
		delete(members, agentID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if n := in.Size(); n > 0 {
		slog.Warn("broker: dropping undelivered messages", "agent", agentID, "count", n)
	}
	in.close()
	slog.Info("broker: agent unregistered", "agent", agentID)
}

// Registered reports whether the agent currently has an inbox.
func (b *Broker) Registered(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.inboxes[agentID]
	return ok
}

// RegisteredAgents returns the IDs of all agents with a live inbox.
func (b *Broker) RegisteredAgents() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.inboxes))
	for id := range b.inboxes {
		out = append(out, id)
	}
	return out
}

// NewMessage creates an immutable message with a fresh ID and timestamp.
func NewMessage(sender, recipient string, mt store.MessageType, content string) *store.Message {
	return &store.Message{
		ID:        store.GenNewID(),
		Sender:    sender,
		Recipient: recipient,
		Type:      mt,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Priority:  1,
	}
}

// Send routes a message. Recipient "ALL" or type broadcast fans out to every
// registered agent except the sender; a "#channel" recipient fans out to the
// channel's subscribers except the sender. The audit row is persisted before
// enqueue; audit failures are logged, not fatal (delivery is best-effort and
// the scheduler is the authority for task-critical state).
//
// Returns an error unless at least one recipient was enqueued.
func (b *Broker) Send(ctx context.Context, msg *store.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if b.audit != nil {
		if err := b.audit.AppendMessage(ctx, msg); err != nil {
			slog.Warn("broker: audit write failed", "message", msg.ID, "error", err)
		}
	}

	if msg.Recipient == store.BroadcastRecipient || msg.Type == store.MsgBroadcast {
		return b.fanOut(b.allExcept(msg.Sender), msg)
	}
	if strings.HasPrefix(msg.Recipient, ChannelPrefix) {
		return b.fanOut(b.channelMembers(strings.TrimPrefix(msg.Recipient, ChannelPrefix), msg.Sender), msg)
	}

	b.mu.RLock()
	in, ok := b.inboxes[msg.Recipient]
	b.mu.RUnlock()
	if !ok {
		return fault.New(fault.NotFound, "recipient %s not registered", msg.Recipient)
	}
	in.push(msg)
	slog.Debug("broker: message delivered", "from", msg.Sender, "to", msg.Recipient, "type", msg.Type)
	return nil
}

// fanOut enqueues a fresh copy of msg for each target.
func (b *Broker) fanOut(targets map[string]*Inbox, msg *store.Message) error {
	delivered := 0
	for id, in := range targets {
		copy := *msg
		copy.ID = store.GenNewID()
		copy.Recipient = id
		in.push(&copy)
		delivered++
	}
	slog.Info("broker: fan-out", "from", msg.Sender, "recipients", delivered, "type", msg.Type)
	if delivered == 0 {
		return fault.New(fault.NotFound, "no recipients for %s message from %s", msg.Type, msg.Sender)
	}
	return nil
}

func (b *Broker) allExcept(sender string) map[string]*Inbox {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*Inbox, len(b.inboxes))
	for id, in := range b.inboxes {
		if id != sender {
			out[id] = in
		}
	}
	return out
}

func (b *Broker) channelMembers(channel, sender string) map[string]*Inbox {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*Inbox)
	for id := range b.channels[channel] {
		if id == sender {
			continue
		}
		if in, ok := b.inboxes[id]; ok {
			out[id] = in
		}
	}
	return out
}

// Receive blocks until a message arrives for the agent, the timeout elapses
// (timeout 0 waits indefinitely), or ctx is cancelled. A timeout returns
// (nil, nil).
func (b *Broker) Receive(ctx context.Context, agentID string, timeout time.Duration) (*store.Message, error) {
	b.mu.RLock()
	in, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil, fault.New(fault.NotFound, "agent %s not registered", agentID)
	}
	return in.Pop(ctx, timeout)
}

// CreateConversation allocates a conversation ID grouping the participants.
// Participant membership is in-memory only; audit rows persist.
func (b *Broker) CreateConversation(participants []string) uuid.UUID {
	id := store.GenNewID()
	b.mu.Lock()
	b.conversations[id] = append([]string(nil), participants...)
	b.mu.Unlock()
	slog.Info("broker: conversation created", "conversation", id, "participants", len(participants))
	return id
}

// JoinChannel subscribes an agent to a named broadcast channel.
func (b *Broker) JoinChannel(agentID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[string]struct{})
	}
	b.channels[channel][agentID] = struct{}{}
}

// LeaveChannel removes an agent from a channel.
func (b *Broker) LeaveChannel(agentID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels[channel], agentID)
}

// History reads a conversation's messages from the audit store in
// chronological order.
func (b *Broker) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	if b.audit == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return b.audit.ConversationHistory(ctx, conversationID, limit)
}

// QueueSize returns the number of pending messages for an agent.
func (b *Broker) QueueSize(agentID string) int {
	b.mu.RLock()
	in, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return in.Size()
}

// Stats summarizes broker state for the system endpoints.
type Stats struct {
	RegisteredAgents    int `json:"registered_agents"`
	ActiveConversations int `json:"active_conversations"`
	BroadcastChannels   int `json:"broadcast_channels"`
	QueuedMessages      int `json:"total_queued_messages"`
}

// Stats returns a snapshot of broker counters.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	queued := 0
	for _, in := range b.inboxes {
		queued += in.Size()
	}
	return Stats{
		RegisteredAgents:    len(b.inboxes),
		ActiveConversations: len(b.conversations),
		BroadcastChannels:   len(b.channels),
		QueuedMessages:      queued,
	}
}
