package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/store"
)

const messageColumns = `message_id, sender_id, recipient_id, message_type, content, metadata,
	timestamp, conversation_id, requires_response, priority`

func (d *DB) AppendMessage(ctx context.Context, m *store.Message) error {
	meta, err := jsonStr(m.Metadata)
	if err != nil {
		return err
	}
	var convID any
	if m.ConversationID != nil {
		convID = m.ConversationID.String()
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO agent_communications (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID.String(), m.Sender, m.Recipient, string(m.Type), m.Content, meta,
		fmtTime(m.Timestamp), convID, m.RequiresResponse, m.Priority,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (d *DB) ConversationHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM agent_communications
		 WHERE conversation_id = $1
		 ORDER BY timestamp ASC
		 LIMIT $2`, conversationID.String(), limit)
}

func (d *DB) AgentMessages(ctx context.Context, agentID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM agent_communications
		 WHERE recipient_id = $1
		 ORDER BY timestamp ASC
		 LIMIT $2`, agentID, limit)
}

func (d *DB) queryMessages(ctx context.Context, query string, args ...any) ([]store.Message, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var (
			m     store.Message
			rawID string
			conv  *string
			meta  string
			ts    any
		)
		if err := rows.Scan(&rawID, &m.Sender, &m.Recipient, &m.Type, &m.Content,
			&meta, &ts, &conv, &m.RequiresResponse, &m.Priority); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse message id: %w", err)
		}
		m.ID = id
		if m.ConversationID, err = parseUUIDPtr(conv); err != nil {
			return nil, err
		}
		if m.Timestamp, err = asTime(ts); err != nil {
			return nil, err
		}
		if err := fromJSON(meta, &m.Metadata); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
