// Package tools hosts the tool implementations exposed to the model and the
// registry the protocol manager resolves them from.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ent0n29/novagate/internal/nova"
)

// defaultSchema is the empty-argument schema used by tools that take no
// input.
var defaultSchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)

// Registry maps lower-cased tool names to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]nova.Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]nova.Tool)}
}

func (r *Registry) Register(t nova.Tool) {
	r.mu.Lock()
	r.tools[strings.ToLower(t.Spec.Name)] = t
	r.mu.Unlock()
}

func (r *Registry) Resolve(name string) (nova.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Specs returns the registered tool specs sorted by name, so the prompt
// configuration is stable across restarts.
func (r *Registry) Specs() []nova.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]nova.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Default builds the standard registry: date/time, weather and the hotel
// reservation suite backed by the given store.
func Default(reservations *ReservationStore) *Registry {
	r := NewRegistry()
	r.Register(DateAndTimeTool())
	r.Register(WeatherTool(nil))
	for _, t := range ReservationTools(reservations) {
		r.Register(t)
	}
	return r
}

// parseArgs decodes the accumulated "content" JSON document into out.
func parseArgs(input map[string]string, out any) error {
	content, ok := input["content"]
	if !ok || content == "" {
		return fmt.Errorf("tool input has no content document")
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parse tool input: %w", err)
	}
	return nil
}
