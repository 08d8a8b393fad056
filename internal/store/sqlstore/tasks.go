package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/store"
)

const taskColumns = `task_id, title, description, assigned_agent, created_by, status, priority,
	created_at, updated_at, due_date, dependencies, subtasks, parent_task, metadata, progress, result, error_message`

func (d *DB) InsertTask(ctx context.Context, t *store.Task) error {
	deps, err := jsonStr(depsOrEmpty(t.Dependencies))
	if err != nil {
		return err
	}
	subs, err := jsonStr(depsOrEmpty(t.Subtasks))
	if err != nil {
		return err
	}
	meta, err := jsonStr(t.Metadata)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID.String(), t.Title, t.Description, uuidStrPtr(t.AssignedAgent), t.CreatedBy,
		string(t.Status), int(t.Priority), fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
		fmtTimePtr(t.DueDate), deps, subs, uuidStrPtr(t.ParentTask), meta,
		t.Progress, t.Result, t.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (d *DB) UpdateTask(ctx context.Context, t *store.Task) error {
	deps, err := jsonStr(depsOrEmpty(t.Dependencies))
	if err != nil {
		return err
	}
	subs, err := jsonStr(depsOrEmpty(t.Subtasks))
	if err != nil {
		return err
	}
	meta, err := jsonStr(t.Metadata)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE tasks SET title = $1, description = $2, assigned_agent = $3, status = $4, priority = $5,
		 updated_at = $6, due_date = $7, dependencies = $8, subtasks = $9, parent_task = $10,
		 metadata = $11, progress = $12, result = $13, error_message = $14
		 WHERE task_id = $15`,
		t.Title, t.Description, uuidStrPtr(t.AssignedAgent), string(t.Status), int(t.Priority),
		fmtTime(t.UpdatedAt), fmtTimePtr(t.DueDate), deps, subs, uuidStrPtr(t.ParentTask),
		meta, t.Progress, t.Result, t.ErrorMessage, t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", t.ID)
	}
	return nil
}

func (d *DB) ListTasks(ctx context.Context) ([]store.Task, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*store.Task, error) {
	var (
		t                  store.Task
		rawID              string
		assigned, parent   *string
		created, updated   any
		due                any
		deps, subs, meta   string
	)
	if err := row.Scan(&rawID, &t.Title, &t.Description, &assigned, &t.CreatedBy,
		&t.Status, &t.Priority, &created, &updated, &due, &deps, &subs, &parent,
		&meta, &t.Progress, &t.Result, &t.ErrorMessage); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}
	t.ID = id
	if t.AssignedAgent, err = parseUUIDPtr(assigned); err != nil {
		return nil, err
	}
	if t.ParentTask, err = parseUUIDPtr(parent); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = asTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = asTime(updated); err != nil {
		return nil, err
	}
	if t.DueDate, err = asTimePtr(due); err != nil {
		return nil, err
	}
	if err := fromJSON(deps, &t.Dependencies); err != nil {
		return nil, err
	}
	if err := fromJSON(subs, &t.Subtasks); err != nil {
		return nil, err
	}
	if err := fromJSON(meta, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

// depsOrEmpty keeps nil slices serializing as [] rather than null.
func depsOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
