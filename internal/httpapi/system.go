package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "swarmd",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	descs := s.toolset.Descriptions(nil)
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	out := make([]toolInfo, 0, len(descs))
	for _, name := range s.toolset.Names() {
		out = append(out, toolInfo{Name: name, Description: descs[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, fault.New(fault.Validation, "invalid limit %q", raw))
			return
		}
	}
	msgs, err := s.bus.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// handleAgentMessages returns the audit log of messages delivered to one
// agent, chronological.
func (s *Server) handleAgentMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.stores.Agents.GetAgent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, fault.New(fault.Validation, "invalid limit %q", raw))
			return
		}
	}
	msgs, err := s.stores.Messages.AgentMessages(r.Context(), id.String(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agents, err := s.stores.Agents.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	busStats := s.bus.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":               len(agents),
		"active_agents":        s.manager.ActiveCount(),
		"tasks":                s.sched.Count(),
		"models":               len(s.router.List()),
		"tools":                len(s.toolset.Names()),
		"queued_messages":      busStats.QueuedMessages,
		"active_conversations": busStats.ActiveConversations,
		"broadcast_channels":   busStats.BroadcastChannels,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"broker":    "ok",
		"scheduler": "ok",
		"store":     "ok",
	}
	healthy := true
	if !s.sched.Running() {
		checks["scheduler"] = "stopped"
		healthy = false
	}
	if s.stores.Health != nil {
		if err := s.stores.Health.Ping(r.Context()); err != nil {
			checks["store"] = err.Error()
			healthy = false
		}
	}
	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

type workshopRequest struct {
	Name     string      `json:"name"`
	AgentIDs []uuid.UUID `json:"agent_ids"`
	Leader   *uuid.UUID  `json:"leader"`
	Task     *struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Priority    json.RawMessage `json:"priority"`
	} `json:"task"`
}

// handleWorkshopCreate builds a team and optionally a kickoff task assigned
// to the leader.
func (s *Server) handleWorkshopCreate(w http.ResponseWriter, r *http.Request) {
	var req workshopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	team, err := s.manager.CreateTeam(r.Context(), req.Name, req.AgentIDs, req.Leader)
	if err != nil {
		writeError(w, err)
		return
	}

	var kickoff *store.Task
	if req.Task != nil {
		priority, err := parsePriority(req.Task.Priority)
		if err != nil {
			writeError(w, err)
			return
		}
		assignee := req.Leader
		if assignee == nil {
			assignee = &req.AgentIDs[0]
		}
		kickoff, err = s.sched.Create(r.Context(), scheduler.CreateParams{
			Title:         req.Task.Title,
			Description:   req.Task.Description,
			CreatedBy:     "workshop:" + req.Name,
			AssignedAgent: assignee,
			Priority:      priority,
			Metadata:      map[string]any{"team": req.Name},
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"team": team, "kickoff_task": kickoff})
}
