package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrymomot/trendwatch/pkg/event"
)

// registered pairs a rule with its runtime enabled flag.
type registered struct {
	rule    Rule
	enabled bool
}

// Registry holds the live rule set. Rules can be added, removed, enabled,
// and disabled at runtime from any goroutine.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*registered
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]*registered),
	}
}

// Add registers a rule, enabled. Duplicate ids are rejected.
func (r *Registry) Add(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[rule.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}
	r.rules[rule.ID] = &registered{rule: rule, enabled: true}
	return nil
}

// Remove deletes a rule. Returns false when the id is unknown.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return false
	}
	delete(r.rules, id)
	return true
}

// Enable turns a rule on. Returns false when the id is unknown.
func (r *Registry) Enable(id string) bool {
	return r.setEnabled(id, true)
}

// Disable turns a rule off without removing it. Returns false when the id
// is unknown.
func (r *Registry) Disable(id string) bool {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.rules[id]
	if !ok {
		return false
	}
	reg.enabled = enabled
	return true
}

// RuleInfo describes a registered rule for listing.
type RuleInfo struct {
	ID      string
	Name    string
	Enabled bool
}

// List returns all registered rules sorted by id.
func (r *Registry) List() []RuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RuleInfo, 0, len(r.rules))
	for _, reg := range r.rules {
		out = append(out, RuleInfo{
			ID:      reg.rule.ID,
			Name:    reg.rule.Name,
			Enabled: reg.enabled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// enabledFor returns the enabled rules matching an event type, in stable id
// order so evaluation order is deterministic.
func (r *Registry) enabledFor(t event.Type) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.rules))
	for _, reg := range r.rules {
		if reg.enabled && reg.rule.matches(t) {
			out = append(out, reg.rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
