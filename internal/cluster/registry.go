package cluster

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shardscope/shardscope/internal/allocation"
	"github.com/sirupsen/logrus"
)

// Registry tracks the nodes known to the cluster. Membership discovery
// happens elsewhere; the registry only records what the discovery layer
// reports.
type Registry struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewRegistry creates a registry on the given database. The schema must have
// been initialized via InitSchema.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{
		db:  db,
		log: logrus.WithField("component", "cluster-registry"),
	}
}

// AddNode registers a node. A missing ID is minted.
func (r *Registry) AddNode(ctx context.Context, node *Node) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	attrs, err := json.Marshal(node.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal node attributes: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cluster_nodes (
			id, name, address, attributes, health_status, latency_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.Name, node.Address, string(attrs), HealthStatusUnknown, 0, now, now)
	if err != nil {
		return fmt.Errorf("failed to add node: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"node_id":   node.ID,
		"node_name": node.Name,
		"address":   node.Address,
	}).Info("Node registered")

	return nil
}

// GetNode retrieves a node by ID.
func (r *Registry) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, attributes, health_status, last_health_check,
		       last_seen, latency_ms, created_at, updated_at
		FROM cluster_nodes
		WHERE id = ?
	`, nodeID)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node not found: %s", nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return node, nil
}

// ListNodes returns all registered nodes ordered by name.
func (r *Registry) ListNodes(ctx context.Context) ([]*Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, attributes, health_status, last_health_check,
		       last_seen, latency_ms, created_at, updated_at
		FROM cluster_nodes
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// DiscoveryNodes returns all registered nodes as allocation identity records.
func (r *Registry) DiscoveryNodes(ctx context.Context) ([]*allocation.DiscoveryNode, error) {
	nodes, err := r.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*allocation.DiscoveryNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.DiscoveryNode())
	}
	return out, nil
}

// RemoveNode removes a node from the registry.
func (r *Registry) RemoveNode(ctx context.Context, nodeID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM cluster_nodes WHERE id = ?", nodeID)
	if err != nil {
		return fmt.Errorf("failed to remove node: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("node not found: %s", nodeID)
	}

	r.log.WithField("node_id", nodeID).Info("Node removed")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var attrs string
	var lastHealthCheck, lastSeen sql.NullTime

	err := row.Scan(
		&node.ID, &node.Name, &node.Address, &attrs, &node.HealthStatus,
		&lastHealthCheck, &lastSeen, &node.LatencyMs, &node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &node.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node attributes: %w", err)
		}
	}
	if lastHealthCheck.Valid {
		node.LastHealthCheck = &lastHealthCheck.Time
	}
	if lastSeen.Valid {
		node.LastSeen = &lastSeen.Time
	}
	return &node, nil
}
