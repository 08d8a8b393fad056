package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/store"
)

func (d *DB) AppendMemory(ctx context.Context, rec *store.MemoryRecord) error {
	meta, err := jsonStr(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO agent_memory (agent_id, memory_type, content, importance, created_at, last_accessed, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.AgentID.String(), rec.MemoryType, rec.Content, rec.Importance,
		fmtTime(rec.CreatedAt), fmtTime(rec.LastAccessed), meta, rec.Embedding,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (d *DB) ListMemory(ctx context.Context, agentID uuid.UUID, limit int) ([]store.MemoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, agent_id, memory_type, content, importance, created_at, last_accessed, metadata
		 FROM agent_memory
		 WHERE agent_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, agentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	var out []store.MemoryRecord
	for rows.Next() {
		var (
			rec              store.MemoryRecord
			rawAgent, meta   string
			created, touched any
		)
		if err := rows.Scan(&rec.ID, &rawAgent, &rec.MemoryType, &rec.Content,
			&rec.Importance, &created, &touched, &meta); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawAgent)
		if err != nil {
			return nil, fmt.Errorf("parse memory agent id: %w", err)
		}
		rec.AgentID = id
		if rec.CreatedAt, err = asTime(created); err != nil {
			return nil, err
		}
		if rec.LastAccessed, err = asTime(touched); err != nil {
			return nil, err
		}
		if err := fromJSON(meta, &rec.Metadata); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) DeleteMemory(ctx context.Context, agentID uuid.UUID) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM agent_memory WHERE agent_id = $1`, agentID.String())
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

func (d *DB) InsertKnowledge(ctx context.Context, rec *store.KnowledgeRecord) error {
	meta, err := jsonStr(rec.Metadata)
	if err != nil {
		return err
	}
	tags, err := jsonStr(tagsOrEmpty(rec.Tags))
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO knowledge_base (title, content, source_url, source_type, scraped_at, embedding, metadata, tags, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Title, rec.Content, rec.SourceURL, rec.SourceType,
		fmtTime(rec.ScrapedAt), rec.Embedding, meta, tags, rec.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge: %w", err)
	}
	return nil
}

func (d *DB) AppendLog(ctx context.Context, rec *store.LogRecord) error {
	meta, err := jsonStr(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO system_logs (level, message, module, agent_id, timestamp, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Level, rec.Message, rec.Module, uuidStrPtr(rec.AgentID), fmtTime(rec.Timestamp), meta,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
