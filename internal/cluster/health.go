package cluster

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DegradedLatencyMs is the latency above which a reachable node is reported
// as degraded rather than healthy.
const DegradedLatencyMs = 1000

// HealthObserver receives the outcome of node health checks. The metrics
// manager satisfies it; a nil observer is allowed.
type HealthObserver interface {
	UpdateNodeHealth(healthy, degraded, unavailable int)
	RecordHealthCheck(status string, duration time.Duration)
}

// CheckNodeHealth performs an HTTP health check on a registered node and
// records the outcome.
func (r *Registry) CheckNodeHealth(ctx context.Context, nodeID string) (*HealthResult, error) {
	node, err := r.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	result := probeNode(ctx, node.Address)

	status := HealthStatusHealthy
	if result.ErrorMessage != "" {
		status = HealthStatusUnavailable
	} else if result.LatencyMs > DegradedLatencyMs {
		status = HealthStatusDegraded
	}

	// last_seen is only updated when the node is reachable, so it tracks
	// "last time alive" rather than "last time we tried".
	now := time.Now()
	if status == HealthStatusUnavailable {
		_, err = r.db.ExecContext(ctx, `
			UPDATE cluster_nodes
			SET health_status = ?, last_health_check = ?, latency_ms = ?, updated_at = ?
			WHERE id = ?
		`, status, now, result.LatencyMs, now, nodeID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE cluster_nodes
			SET health_status = ?, last_health_check = ?, last_seen = ?, latency_ms = ?, updated_at = ?
			WHERE id = ?
		`, status, now, now, result.LatencyMs, now, nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update node health: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cluster_health_history (node_id, health_status, latency_ms, error_message)
		VALUES (?, ?, ?, ?)
	`, nodeID, status, result.LatencyMs, result.ErrorMessage)
	if err != nil {
		r.log.WithError(err).Warn("Failed to record health check history")
	}

	return &HealthResult{
		NodeID:       nodeID,
		Status:       status,
		LatencyMs:    result.LatencyMs,
		LastCheck:    now,
		ErrorMessage: result.ErrorMessage,
	}, nil
}

// CheckAllNodes health-checks every registered node and reports the outcomes
// to the observer.
func (r *Registry) CheckAllNodes(ctx context.Context, observer HealthObserver) []*HealthResult {
	nodes, err := r.ListNodes(ctx)
	if err != nil {
		r.log.WithError(err).Error("Failed to list nodes for health check")
		return nil
	}

	var healthy, degraded, unavailable int
	results := make([]*HealthResult, 0, len(nodes))
	for _, node := range nodes {
		result, err := r.CheckNodeHealth(ctx, node.ID)
		if err != nil {
			r.log.WithError(err).WithField("node_id", node.ID).Warn("Health check failed")
			continue
		}
		results = append(results, result)

		if observer != nil {
			observer.RecordHealthCheck(result.Status, time.Duration(result.LatencyMs)*time.Millisecond)
		}
		switch result.Status {
		case HealthStatusHealthy:
			healthy++
		case HealthStatusDegraded:
			degraded++
		case HealthStatusUnavailable:
			unavailable++
		}
	}

	if observer != nil {
		observer.UpdateNodeHealth(healthy, degraded, unavailable)
	}
	return results
}

// RunHealthChecks health-checks all nodes on the given interval until the
// context is cancelled.
func (r *Registry) RunHealthChecks(ctx context.Context, interval time.Duration, observer HealthObserver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.WithField("interval", interval).Info("Starting node health checks")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Stopping node health checks")
			return
		case <-ticker.C:
			r.CheckAllNodes(ctx, observer)
		}
	}
}

func probeNode(ctx context.Context, address string) *HealthResult {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", address), nil)
	if err != nil {
		return &HealthResult{ErrorMessage: err.Error()}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &HealthResult{
			LatencyMs:    int(time.Since(start).Milliseconds()),
			ErrorMessage: err.Error(),
		}
	}
	defer resp.Body.Close()

	latency := int(time.Since(start).Milliseconds())
	if resp.StatusCode != http.StatusOK {
		return &HealthResult{
			LatencyMs:    latency,
			ErrorMessage: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		}
	}
	return &HealthResult{LatencyMs: latency}
}
