package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/fault"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

type createTaskRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	CreatedBy     string          `json:"created_by"`
	AssignedAgent *uuid.UUID      `json:"assigned_agent"`
	Priority      json.RawMessage `json:"priority"` // number 1-4 or name
	DueDate       *time.Time      `json:"due_date"`
	Dependencies  []uuid.UUID     `json:"dependencies"`
	ParentTask    *uuid.UUID      `json:"parent_task"`
	Metadata      map[string]any  `json:"metadata"`
}

// parsePriority accepts a JSON number (1-4) or a level name.
func parsePriority(raw json.RawMessage) (store.TaskPriority, error) {
	if len(raw) == 0 {
		return store.PriorityMedium, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 1 || n > 4 {
			return 0, fault.New(fault.Validation, "priority must be 1-4, got %d", n)
		}
		return store.TaskPriority(n), nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		p, ok := store.ParsePriority(name)
		if !ok {
			return 0, fault.New(fault.Validation, "unknown priority %q", name)
		}
		return p, nil
	}
	return 0, fault.New(fault.Validation, "priority must be a number or a level name")
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "user"
	}
	t, err := s.sched.Create(r.Context(), scheduler.CreateParams{
		Title:         req.Title,
		Description:   req.Description,
		CreatedBy:     createdBy,
		AssignedAgent: req.AssignedAgent,
		Priority:      priority,
		DueDate:       req.DueDate,
		Dependencies:  req.Dependencies,
		ParentTask:    req.ParentTask,
		Metadata:      req.Metadata,
	})
	if err != nil {
		// Cycle and missing-dependency failures are client errors per the
		// task API contract.
		if fault.IsKind(err, fault.Conflict) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statusFilter *store.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := store.TaskStatus(raw)
		if !store.ValidTaskStatus(st) {
			writeError(w, fault.New(fault.Validation, "unknown status %q", raw))
			return
		}
		statusFilter = &st
	}
	var agentFilter *uuid.UUID
	if raw := r.URL.Query().Get("assigned_agent"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, fault.New(fault.Validation, "invalid assigned_agent: %v", err))
			return
		}
		agentFilter = &id
	}
	tasks := s.sched.List(statusFilter, agentFilter)
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.sched.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agentID, err := pathUUID(r, "agent_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sched.Assign(r.Context(), id, agentID); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.sched.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var result *string
	if q := r.URL.Query().Get("result"); q != "" {
		result = &q
	} else if r.Body != nil {
		var body struct {
			Result *string `json:"result"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			result = body.Result
		}
	}
	if err := s.sched.Complete(r.Context(), id, result); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.sched.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type breakDownRequest struct {
	Subtasks  []string `json:"subtasks"`
	CreatedBy string   `json:"created_by"`
}

func (s *Server) handleBreakDownTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req breakDownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Subtasks) == 0 {
		writeError(w, fault.New(fault.Validation, "subtasks is required"))
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "user"
	}
	subtasks, err := s.sched.BreakDown(r.Context(), id, req.Subtasks, createdBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subtasks": subtasks})
}

type setDependenciesRequest struct {
	Dependencies []uuid.UUID `json:"dependencies"`
}

func (s *Server) handleSetDependencies(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req setDependenciesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.sched.SetDependencies(r.Context(), id, req.Dependencies); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.sched.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
