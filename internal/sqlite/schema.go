package sqlite

// Schema DDL. Every statement is idempotent so Open can run it against an
// existing database.
const (
	createAffectedLaws = `CREATE TABLE IF NOT EXISTS cascade_affected_laws (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    affected_law TEXT NOT NULL,
    update_type TEXT NOT NULL,
    status TEXT NOT NULL,
    source_laws TEXT NOT NULL DEFAULT '[]',
    layer INTEGER NOT NULL CHECK (layer > 0),
    last_error TEXT NOT NULL DEFAULT '',
    claim_token TEXT NOT NULL DEFAULT '',
    claimed_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createLaws = `CREATE TABLE IF NOT EXISTS laws (
    name TEXT PRIMARY KEY,
    title_en TEXT NOT NULL DEFAULT '',
    amending TEXT NOT NULL DEFAULT '[]',
    rescinding TEXT NOT NULL DEFAULT '[]',
    enacted_by TEXT NOT NULL DEFAULT '[]',
    enacting TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL
);`
)

// Index DDL.
const (
	idxAffectedSessionStatus = `CREATE INDEX IF NOT EXISTS idx_cascade_session_status ON cascade_affected_laws(session_id, status);`
	idxAffectedSessionType   = `CREATE INDEX IF NOT EXISTS idx_cascade_session_type ON cascade_affected_laws(session_id, update_type);`
	idxAffectedKey           = `CREATE INDEX IF NOT EXISTS idx_cascade_key ON cascade_affected_laws(session_id, affected_law, update_type);`

	// At most one pending and one deferred entry per (session, law,
	// update type).
	idxAffectedPendingKey = `CREATE UNIQUE INDEX IF NOT EXISTS idx_cascade_pending_key
    ON cascade_affected_laws(session_id, affected_law, update_type)
    WHERE status = 'pending';`
	idxAffectedDeferredKey = `CREATE UNIQUE INDEX IF NOT EXISTS idx_cascade_deferred_key
    ON cascade_affected_laws(session_id, affected_law, update_type)
    WHERE status = 'deferred';`

	// Replaced by the two indexes above.
	dropAffectedOpenKey = `DROP INDEX IF EXISTS idx_cascade_open_key;`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createAffectedLaws,
	createLaws,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxAffectedSessionStatus,
	idxAffectedSessionType,
	idxAffectedKey,
	dropAffectedOpenKey,
	idxAffectedPendingKey,
	idxAffectedDeferredKey,
}

// pragmas configure every connection for a single local writer.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}
