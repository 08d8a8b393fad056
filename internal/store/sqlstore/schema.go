package sqlstore

// sqliteSchema bootstraps the SQLite backend. The Postgres equivalent lives
// in migrations/ and is applied by the migrate command.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agents (
    agent_id             TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    role                 TEXT NOT NULL DEFAULT '',
    model_id             TEXT NOT NULL,
    allowed_tools        TEXT NOT NULL DEFAULT '[]',
    autonomy_level       TEXT NOT NULL DEFAULT 'medium',
    communication_rights TEXT NOT NULL DEFAULT '[]',
    memory_scope         TEXT NOT NULL DEFAULT 'task_limited',
    created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    task_id        TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    assigned_agent TEXT,
    created_by     TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    priority       INTEGER NOT NULL DEFAULT 2,
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL,
    due_date       TEXT,
    dependencies   TEXT NOT NULL DEFAULT '[]',
    subtasks       TEXT NOT NULL DEFAULT '[]',
    parent_task    TEXT,
    metadata       TEXT NOT NULL DEFAULT '{}',
    progress       REAL NOT NULL DEFAULT 0,
    result         TEXT,
    error_message  TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned_agent ON tasks(assigned_agent);

CREATE TABLE IF NOT EXISTS agent_communications (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id        TEXT NOT NULL,
    sender_id         TEXT NOT NULL,
    recipient_id      TEXT NOT NULL,
    message_type      TEXT NOT NULL,
    content           TEXT NOT NULL,
    metadata          TEXT NOT NULL DEFAULT '{}',
    timestamp         TEXT NOT NULL,
    conversation_id   TEXT,
    requires_response INTEGER NOT NULL DEFAULT 0,
    priority          INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_comms_message ON agent_communications(message_id);
CREATE INDEX IF NOT EXISTS idx_comms_conversation ON agent_communications(conversation_id);
CREATE INDEX IF NOT EXISTS idx_comms_recipient ON agent_communications(recipient_id);
CREATE INDEX IF NOT EXISTS idx_comms_timestamp ON agent_communications(timestamp);

CREATE TABLE IF NOT EXISTS knowledge_base (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    title       TEXT NOT NULL,
    content     TEXT NOT NULL,
    source_url  TEXT NOT NULL DEFAULT '',
    source_type TEXT NOT NULL DEFAULT '',
    scraped_at  TEXT NOT NULL,
    embedding   BLOB,
    metadata    TEXT NOT NULL DEFAULT '{}',
    tags        TEXT NOT NULL DEFAULT '[]',
    created_by  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS agent_memory (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id      TEXT NOT NULL,
    memory_type   TEXT NOT NULL,
    content       TEXT NOT NULL,
    importance    REAL NOT NULL DEFAULT 0.5,
    created_at    TEXT NOT NULL,
    last_accessed TEXT NOT NULL,
    metadata      TEXT NOT NULL DEFAULT '{}',
    embedding     BLOB
);
CREATE INDEX IF NOT EXISTS idx_memory_agent ON agent_memory(agent_id);

CREATE TABLE IF NOT EXISTS system_logs (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    level     TEXT NOT NULL,
    message   TEXT NOT NULL,
    module    TEXT NOT NULL DEFAULT '',
    agent_id  TEXT,
    timestamp TEXT NOT NULL,
    metadata  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON system_logs(timestamp);
`
