// Package agent runs the reason-act loop for each registered agent and owns
// the lifecycle manager that starts and stops agent workers.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/store"
)

var tracer = otel.Tracer("swarmd/agent")

// CancelledSentinel is returned by Think when a stop signal interrupts the
// loop at an iteration boundary.
const CancelledSentinel = "cancelled"

// FallbackAnswer is returned when the iteration cap is reached without a
// final answer.
const FallbackAnswer = "I could not determine a final answer within the allowed number of steps."

// Think runs the reason-act loop over the prompt and returns the final
// answer. maxIterations <= 0 uses the configured default. Model errors are
// recorded as observations and the loop continues; tool errors are never
// fatal.
func (r *Runtime) Think(ctx context.Context, prompt string, maxIterations int) string {
	if maxIterations <= 0 {
		maxIterations = r.cfg.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}

	ctx, span := tracer.Start(ctx, "agent.Think",
		trace.WithAttributes(
			attribute.String("agent.id", r.data.ID.String()),
			attribute.String("agent.model", r.data.ModelID),
		))
	defer span.End()

	r.emit(broker.EventRunStarted, map[string]any{"agent_id": r.data.ID.String()})

	system := systemPrompt(r.data.Name, r.data.Role, r.toolset.Descriptions(r.data.AllowedTools))
	history := r.seedHistory(prompt)

	for i := 0; i < maxIterations; i++ {
		if r.stopped() {
			r.emit(broker.EventRunFailed, map[string]any{"agent_id": r.data.ID.String(), "reason": "cancelled"})
			return CancelledSentinel
		}

		response, err := r.generate(ctx, renderPrompt(system, history))
		if err != nil {
			slog.Warn("agent: model call failed", "agent", r.data.ID, "iteration", i, "error", err)
			history = append(history, fmt.Sprintf("Observation: Error: model call failed: %v", err))
			continue
		}

		toolName, args, isCall := parseToolCall(response)
		if !isCall {
			answer := strings.TrimSpace(response)
			r.emit(broker.EventRunCompleted, map[string]any{"agent_id": r.data.ID.String(), "iterations": i + 1})
			return answer
		}

		observation := r.runTool(ctx, toolName, args)
		entry := fmt.Sprintf("Action: Used tool %s with args %v. Observation: %s.", toolName, args, observation)
		history = append(history, entry)
		r.remember(ctx, "observation", entry)
	}

	r.emit(broker.EventRunCompleted, map[string]any{"agent_id": r.data.ID.String(), "iterations": maxIterations, "capped": true})
	return FallbackAnswer
}

// generate calls the model with the configured per-step deadline.
func (r *Runtime) generate(ctx context.Context, prompt string) (string, error) {
	if secs := r.cfg.ThinkTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	return r.router.Generate(ctx, r.data.ModelID, prompt, 0, 0)
}

// runTool resolves and executes one tool call, mapping every failure mode to
// an observation string.
func (r *Runtime) runTool(ctx context.Context, name string, args map[string]any) string {
	if !r.toolAllowed(name) {
		slog.Warn("agent: tool not available", "agent", r.data.ID, "tool", name)
		return "Error: Tool not available"
	}
	t, ok := r.toolset.Resolve(name)
	if !ok {
		slog.Warn("agent: tool not registered", "agent", r.data.ID, "tool", name)
		return "Error: Tool not available"
	}

	r.emit(broker.EventToolCall, map[string]any{"agent_id": r.data.ID.String(), "tool": name})
	out, err := t.Execute(ctx, args)
	if err != nil {
		r.emit(broker.EventToolResult, map[string]any{"agent_id": r.data.ID.String(), "tool": name, "error": err.Error()})
		return fmt.Sprintf("Error: %v", err)
	}
	r.emit(broker.EventToolResult, map[string]any{"agent_id": r.data.ID.String(), "tool": name})
	return out
}

// toolAllowed checks the agent's allowed set. An empty set permits every
// registered tool.
func (r *Runtime) toolAllowed(name string) bool {
	if len(r.data.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range r.data.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// seedHistory starts the loop history with the prompt, preceded by recalled
// memories for persistent-scope agents.
func (r *Runtime) seedHistory(prompt string) []string {
	history := make([]string, 0, 8)
	for _, m := range r.memorySeed {
		history = append(history, "Memory: "+m)
	}
	return append(history, prompt)
}

// remember appends to persistent memory when the agent's scope keeps it.
func (r *Runtime) remember(ctx context.Context, memType, content string) {
	if r.data.MemoryScope != store.MemoryPersistent || r.memory == nil {
		return
	}
	rec := &store.MemoryRecord{
		AgentID:      r.data.ID,
		MemoryType:   memType,
		Content:      content,
		Importance:   0.5,
		CreatedAt:    time.Now().UTC(),
		LastAccessed: time.Now().UTC(),
	}
	if err := r.memory.AppendMemory(ctx, rec); err != nil {
		slog.Warn("agent: memory write failed", "agent", r.data.ID, "error", err)
	}
}
