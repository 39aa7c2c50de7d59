package graph

// SQLite schema DDL constants

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    rowid INTEGER PRIMARY KEY AUTOINCREMENT,
    node_key TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    modified_at DATETIME NOT NULL
)`

// node_labels holds every label of a node, the type label included. Its
// implicit rowid keeps insertion order.
const schemaNodeLabels = `
CREATE TABLE IF NOT EXISTS node_labels (
    node_rowid INTEGER NOT NULL REFERENCES nodes(rowid) ON DELETE CASCADE,
    label TEXT NOT NULL,
    PRIMARY KEY (node_rowid, label)
)`

const schemaLinks = `
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_rowid INTEGER NOT NULL REFERENCES nodes(rowid) ON DELETE CASCADE,
    target_rowid INTEGER NOT NULL REFERENCES nodes(rowid) ON DELETE CASCADE,
    type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    modified_at DATETIME NOT NULL,
    UNIQUE(source_rowid, target_rowid, type)
)`

// Uniqueness constraints on a label's key, checked on insert.
const schemaConstraints = `
CREATE TABLE IF NOT EXISTS key_constraints (
    label TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
)`

// Index definitions
const indexNodesKey = `CREATE INDEX IF NOT EXISTS idx_nodes_key ON nodes(node_key)`
const indexNodeLabelsLabel = `CREATE INDEX IF NOT EXISTS idx_node_labels_label ON node_labels(label)`
const indexLinksSource = `CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_rowid)`
const indexLinksTarget = `CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_rowid)`
const indexLinksType = `CREATE INDEX IF NOT EXISTS idx_links_type ON links(type)`

// SQLite pragmas for optimal performance
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaFK = `PRAGMA foreign_keys=ON`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaNodeLabels,
		schemaLinks,
		schemaConstraints,
		indexNodesKey,
		indexNodeLabelsLabel,
		indexLinksSource,
		indexLinksTarget,
		indexLinksType,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
