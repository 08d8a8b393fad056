package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

func (d *DB) CreateAgent(ctx context.Context, a *store.AgentData) error {
	tools, err := jsonStr(a.AllowedTools)
	if err != nil {
		return err
	}
	rights, err := jsonStr(a.CommunicationRights)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, role, model_id, allowed_tools, autonomy_level, communication_rights, memory_scope, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID.String(), a.Name, a.Role, a.ModelID, tools,
		a.AutonomyLevel, rights, a.MemoryScope, fmtTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (d *DB) GetAgent(ctx context.Context, id uuid.UUID) (*store.AgentData, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT agent_id, name, role, model_id, allowed_tools, autonomy_level, communication_rights, memory_scope, created_at
		 FROM agents WHERE agent_id = $1`, id.String())
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "agent %s", id)
	}
	return a, err
}

func (d *DB) ListAgents(ctx context.Context) ([]store.AgentData, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT agent_id, name, role, model_id, allowed_tools, autonomy_level, communication_rights, memory_scope, created_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []store.AgentData
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (d *DB) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.NotFound, "agent %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*store.AgentData, error) {
	var (
		a            store.AgentData
		rawID        string
		tools, right string
		created      any
	)
	if err := row.Scan(&rawID, &a.Name, &a.Role, &a.ModelID, &tools, &a.AutonomyLevel, &right, &a.MemoryScope, &created); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse agent id: %w", err)
	}
	a.ID = id
	if err := fromJSON(tools, &a.AllowedTools); err != nil {
		return nil, err
	}
	if err := fromJSON(right, &a.CommunicationRights); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = asTime(created); err != nil {
		return nil, err
	}
	return &a, nil
}
