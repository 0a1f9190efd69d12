package cluster

import (
	"time"

	"github.com/shardscope/shardscope/internal/allocation"
)

// Node is a registered cluster node as tracked by the registry.
type Node struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Address         string            `json:"address"`
	Attributes      map[string]string `json:"attributes"`
	HealthStatus    string            `json:"health_status"`
	LastHealthCheck *time.Time        `json:"last_health_check"`
	LastSeen        *time.Time        `json:"last_seen"`
	LatencyMs       int               `json:"latency_ms"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DiscoveryNode projects the registry row into the identity record the
// allocation engine works with.
func (n *Node) DiscoveryNode() *allocation.DiscoveryNode {
	return &allocation.DiscoveryNode{
		ID:         n.ID,
		Name:       n.Name,
		Address:    n.Address,
		Attributes: n.Attributes,
	}
}

// HealthResult is returned by health check operations.
type HealthResult struct {
	NodeID       string    `json:"node_id"`
	Status       string    `json:"status"`
	LatencyMs    int       `json:"latency_ms"`
	LastCheck    time.Time `json:"last_check"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Health status constants
const (
	HealthStatusHealthy     = "healthy"
	HealthStatusDegraded    = "degraded"
	HealthStatusUnavailable = "unavailable"
	HealthStatusUnknown     = "unknown"
)
