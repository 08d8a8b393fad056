package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/agent"
	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

type createAgentRequest struct {
	Name                string   `json:"name"`
	Role                string   `json:"role"`
	ModelID             string   `json:"model_id"`
	AllowedToolNames    []string `json:"allowed_tool_names"`
	AutonomyLevel       string   `json:"autonomy_level"`
	CommunicationRights []string `json:"communication_rights"`
	MemoryScope         string   `json:"memory_scope"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	a, err := s.manager.Create(r.Context(), agent.CreateParams{
		Name:                req.Name,
		Role:                req.Role,
		ModelID:             req.ModelID,
		AllowedTools:        req.AllowedToolNames,
		AutonomyLevel:       req.AutonomyLevel,
		CommunicationRights: req.CommunicationRights,
		MemoryScope:         req.MemoryScope,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type agentSummary struct {
	*store.AgentData
	Active    bool `json:"active"`
	QueueSize int  `json:"queue_size"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.stores.Agents.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]agentSummary, 0, len(agents))
	for i := range agents {
		a := &agents[i]
		out = append(out, agentSummary{
			AgentData: a,
			Active:    s.manager.Active(a.ID),
			QueueSize: s.bus.QueueSize(a.ID.String()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := s.stores.Agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentSummary{
		AgentData: a,
		Active:    s.manager.Active(a.ID),
		QueueSize: s.bus.QueueSize(a.ID.String()),
	})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Start(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "active": true})
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Stop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "active": false})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.manager.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type thinkRequest struct {
	Prompt        string `json:"prompt"`
	MaxIterations int    `json:"max_iterations"`
}

func (s *Server) handleThink(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req thinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Prompt == "" {
		writeError(w, fault.New(fault.Validation, "prompt is required"))
		return
	}
	rt, ok := s.manager.Runtime(id)
	if !ok {
		writeError(w, fault.New(fault.Conflict, "agent %s is not started", id))
		return
	}
	answer := rt.Think(r.Context(), req.Prompt, req.MaxIterations)
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

type messageRequest struct {
	Sender           string         `json:"sender"`
	MessageType      string         `json:"message_type"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata"`
	ConversationID   *uuid.UUID     `json:"conversation_id"`
	RequiresResponse bool           `json:"requires_response"`
	Priority         int            `json:"priority"`
}

func (s *Server) handleMessageAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	mt, ok := store.ParseMessageType(req.MessageType)
	if !ok {
		writeError(w, fault.New(fault.Validation, "unknown message_type %q", req.MessageType))
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = "user"
	}

	msg := broker.NewMessage(sender, id.String(), mt, req.Content)
	msg.Metadata = req.Metadata
	msg.ConversationID = req.ConversationID
	msg.RequiresResponse = req.RequiresResponse
	if req.Priority > 0 {
		msg.Priority = req.Priority
	}
	if err := s.bus.Send(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_id": msg.ID, "delivered": true})
}

type broadcastRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Sender == "" {
		req.Sender = "user"
	}
	if err := s.manager.Broadcast(r.Context(), req.Sender, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true})
}

// pathUUID parses a UUID path segment.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fault.New(fault.Validation, "invalid %s: %v", name, err)
	}
	return id, nil
}
