package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shardscope/shardscope/internal/allocation"
	"github.com/shardscope/shardscope/internal/cluster"
	"github.com/shardscope/shardscope/internal/history"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type explainRequest struct {
	Index   string `json:"index"`
	Shard   int    `json:"shard"`
	Primary bool   `json:"primary"`
}

// handleExplain answers POST /api/v1/cluster/allocation/explain. With
// ?format=binary the response is the wire encoding instead of JSON.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Index == "" {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}

	state := s.currentState()
	if state == nil {
		writeError(w, http.StatusServiceUnavailable, "no cluster state installed")
		return
	}

	start := time.Now()
	explanation, err := cluster.ExplainShard(state, req.Index, req.Shard, req.Primary)
	if err != nil {
		s.metricsManager.RecordExplainError(req.Index, "bad_target")
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.metricsManager.RecordExplain(req.Index, explainOutcome(explanation), time.Since(start))

	rendered, err := explanation.RenderJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render explanation")
		return
	}

	// The rendered document is recorded for both output formats.
	s.recordHistory(req, rendered)

	if r.URL.Query().Get("format") == "binary" {
		w.Header().Set("Content-Type", "application/octet-stream")
		if err := explanation.Encode(w); err != nil {
			logrus.WithError(err).Error("Failed to encode explanation")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rendered)
}

// explainOutcome condenses a multi-node explanation into one label for
// metrics.
func explainOutcome(explanation *allocation.ClusterAllocationExplanation) string {
	if explanation.IsAssigned() {
		return allocation.FinalDecisionAlreadyAssigned.String()
	}
	for _, ne := range explanation.NodeExplanations() {
		if ne.FinalDecision == allocation.FinalDecisionYes {
			return allocation.FinalDecisionYes.String()
		}
	}
	return allocation.FinalDecisionNo.String()
}

func (s *Server) recordHistory(req explainRequest, rendered []byte) {
	if s.historyStore == nil {
		return
	}
	err := s.historyStore.Record(history.Entry{
		Index:       req.Index,
		Shard:       req.Shard,
		Primary:     req.Primary,
		Explanation: rendered,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to record explain history")
	}
	s.metricsManager.RecordHistoryWrite(err == nil)
}

// handleExplainHistory answers GET /api/v1/cluster/allocation/explain/history.
func (s *Server) handleExplainHistory(w http.ResponseWriter, r *http.Request) {
	if s.historyStore == nil {
		writeError(w, http.StatusNotFound, "explain history is disabled")
		return
	}

	q := r.URL.Query()
	index := q.Get("index")
	if index == "" {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	shard, err := strconv.Atoi(q.Get("shard"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "shard must be an integer")
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	until := time.Now()
	if v := q.Get("since"); v != "" {
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
	}
	if v := q.Get("until"); v != "" {
		if until, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	entries, err := s.historyStore.Query(index, shard, since, until, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleHistoryStats answers GET /api/v1/cluster/allocation/explain/history/stats.
func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.historyStore == nil {
		writeError(w, http.StatusNotFound, "explain history is disabled")
		return
	}

	stats, err := s.historyStore.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleInstallState answers PUT /api/v1/cluster/state. The snapshot is
// validated before it replaces the current one.
func (s *Server) handleInstallState(w http.ResponseWriter, r *http.Request) {
	state, err := cluster.LoadState(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.installState(state)

	summary := state.Summarize()
	logrus.WithFields(logrus.Fields{
		"nodes":   summary.Nodes,
		"indices": summary.Indices,
		"shards":  summary.Shards,
	}).Info("Installed cluster state")

	writeJSON(w, http.StatusOK, summary)
}

// handleGetState answers GET /api/v1/cluster/state with the installed
// snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.currentState()
	if state == nil {
		writeError(w, http.StatusNotFound, "no cluster state installed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	if nodes == nil {
		nodes = []*cluster.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var node cluster.Node
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if node.Name == "" || node.Address == "" {
		writeError(w, http.StatusBadRequest, "name and address are required")
		return
	}

	if err := s.registry.AddNode(r.Context(), &node); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add node")
		return
	}
	writeJSON(w, http.StatusCreated, &node)
}

// handleNodeIdentities answers GET /api/v1/cluster/nodes/identities with the
// registered nodes in the shape state snapshots embed under "nodes".
func (s *Server) handleNodeIdentities(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.DiscoveryNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]

	node, err := s.registry.GetNode(r.Context(), nodeID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]

	if err := s.registry.RemoveNode(r.Context(), nodeID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth answers GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"state_installed": s.currentState() != nil,
	})
}
