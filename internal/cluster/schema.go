package cluster

import (
	"database/sql"
	"fmt"
)

const schema = `
-- Nodes known to this cluster
CREATE TABLE IF NOT EXISTS cluster_nodes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    address TEXT NOT NULL,
    attributes TEXT DEFAULT '{}',
    health_status TEXT NOT NULL DEFAULT 'unknown',
    last_health_check TIMESTAMP,
    last_seen TIMESTAMP,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cluster_nodes_health ON cluster_nodes(health_status);
CREATE INDEX IF NOT EXISTS idx_cluster_nodes_name ON cluster_nodes(name);

-- Health check history for monitoring trends
CREATE TABLE IF NOT EXISTS cluster_health_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id TEXT NOT NULL,
    health_status TEXT NOT NULL,
    latency_ms INTEGER DEFAULT 0,
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    error_message TEXT DEFAULT '',
    FOREIGN KEY (node_id) REFERENCES cluster_nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cluster_health_node ON cluster_health_history(node_id);
`

// InitSchema creates the registry tables if they do not exist.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cluster schema: %w", err)
	}
	return nil
}
