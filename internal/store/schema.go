package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    ts                   TEXT NOT NULL,
    day                  TEXT NOT NULL,
    session_id           TEXT NOT NULL,
    model                TEXT NOT NULL,
    prompt_tokens        INTEGER NOT NULL DEFAULT 0,
    completion_tokens    INTEGER NOT NULL DEFAULT 0,
    total_tokens         INTEGER NOT NULL DEFAULT 0,
    cost                 REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ledger_meta (
    key                  TEXT PRIMARY KEY,
    value                TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_day ON ledger_entries(day);
CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_entries(session_id);
CREATE INDEX IF NOT EXISTS idx_ledger_model ON ledger_entries(model);
`
