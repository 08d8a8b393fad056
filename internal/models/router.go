// Package models routes text generation requests to configured inference
// backends. Each model is loaded at most once, guarded by a per-model lock,
// and optionally rate-limited.
package models

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/fault"
)

var tracer = otel.Tracer("swarmd/models")

// Backend generates text for one configured model.
type Backend interface {
	// Load prepares the backend (connectivity probe, weight load). Called at
	// most once per model.
	Load(ctx context.Context) error
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

type modelState struct {
	cfg     config.ModelConfig
	backend Backend
	limiter *rate.Limiter // nil when unlimited

	loadMu sync.Mutex
	loaded bool
}

// Router owns the model table. Safe for concurrent use; UpdateModels may be
// called while requests are in flight.
type Router struct {
	mu     sync.RWMutex
	models map[string]*modelState
}

// NewRouter builds a router from the configured model table.
func NewRouter(cfgs map[string]config.ModelConfig) *Router {
	r := &Router{models: make(map[string]*modelState)}
	r.UpdateModels(cfgs)
	return r
}

func newState(cfg config.ModelConfig) *modelState {
	st := &modelState{cfg: cfg, backend: newBackend(cfg)}
	if rps := cfg.Config.RateLimitRPS; rps > 0 {
		st.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return st
}

func newBackend(cfg config.ModelConfig) Backend {
	switch cfg.Provider {
	case config.ProviderLlamaCpp:
		return newLlamaCppBackend(cfg)
	default:
		return newOpenAIBackend(cfg)
	}
}

// UpdateModels replaces the model table. Models whose configuration is
// unchanged keep their backend and loaded state; changed or new entries get
// a fresh backend, and removed entries are dropped.
func (r *Router) UpdateModels(cfgs map[string]config.ModelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]*modelState, len(cfgs))
	for id, cfg := range cfgs {
		if prev, ok := r.models[id]; ok && reflect.DeepEqual(prev.cfg, cfg) {
			next[id] = prev
			continue
		}
		next[id] = newState(cfg)
		slog.Info("models: model configured", "model", id, "provider", cfg.Provider)
	}
	for id := range r.models {
		if _, ok := next[id]; !ok {
			slog.Info("models: model removed", "model", id)
		}
	}
	r.models = next
}

// List returns the configured model IDs.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for id := range r.models {
		out = append(out, id)
	}
	return out
}

// Generate runs one completion. maxTokens and temperature <= 0 fall back to
// the model's configured tunables. Unknown models are NotFound; a failed
// load is BackendUnavailable; a failed generation is Transient.
func (r *Router) Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error) {
	r.mu.RLock()
	st, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return "", fault.New(fault.NotFound, "unknown model %q", modelID)
	}

	ctx, span := tracer.Start(ctx, "models.Generate",
		trace.WithAttributes(
			attribute.String("model.id", modelID),
			attribute.String("model.provider", st.cfg.Provider),
		))
	defer span.End()

	if st.limiter != nil {
		if err := st.limiter.Wait(ctx); err != nil {
			return "", fault.Wrap(err, fault.Transient, "rate limit wait for %s", modelID)
		}
	}
	if err := st.ensureLoaded(ctx); err != nil {
		span.RecordError(err)
		return "", fault.Wrap(err, fault.BackendUnavailable, "model %s unavailable", modelID)
	}

	if maxTokens <= 0 {
		maxTokens = st.cfg.Config.MaxTokens
	}
	if temperature <= 0 {
		temperature = st.cfg.Config.Temperature
	}
	out, err := st.backend.Generate(ctx, prompt, maxTokens, temperature)
	if err != nil {
		span.RecordError(err)
		return "", fault.Wrap(err, fault.Transient, "generate with %s", modelID)
	}
	return out, nil
}

// ensureLoaded loads the backend once. Concurrent callers for the same model
// serialize on the load lock; other models are unaffected.
func (st *modelState) ensureLoaded(ctx context.Context) error {
	st.loadMu.Lock()
	defer st.loadMu.Unlock()
	if st.loaded {
		return nil
	}
	if err := st.backend.Load(ctx); err != nil {
		return err
	}
	st.loaded = true
	return nil
}
