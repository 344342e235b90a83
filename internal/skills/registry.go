// Package skills implements the skill registry: builtin, in-process
// skills and content-based skills loaded from SKILL.md files.
package skills

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Source distinguishes how a skill was registered.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceSkillMD Source = "skillmd"
)

// Context controls whether a skill's execution shares the caller's
// conversation transcript or starts from a clean one.
type Context string

const (
	ContextFork    Context = "fork"
	ContextInherit Context = "inherit"
)

// ExecuteFunc is a builtin skill's in-process handler. It is installed
// after registration (see Registry.Bind) to break the cyclic dependency
// between the Skill Registry and the Agent Service.
type ExecuteFunc func(ctx context.Context, argsText string) (text string, handled bool, err error)

// Skill describes one registered skill.
type Skill struct {
	Name          string
	Description   string
	UserInvocable bool
	ArgumentHint  string
	// ModelInvocable marks a builtin skill as exposed to the LLM's tool
	// catalogue, dispatched through its bound ExecuteFunc rather than a
	// skill-content completion. clear/retry are slash-only and leave
	// this false; a native API-backed tool like github sets it true.
	ModelInvocable         bool
	DisableModelInvocation bool
	AllowedTools           []string
	SkillContext           Context
	Instructions           string
	Source                 Source
	execute                ExecuteFunc
}

// Registry stores skill definitions keyed by name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// New creates an empty skill registry.
func New() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// RegisterBuiltin adds a builtin skill without an executor. Call Bind
// later to install the executor once the Agent Service's dependencies
// exist.
func (r *Registry) RegisterBuiltin(s Skill) {
	s.Source = SourceBuiltin
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = &s
}

// RegisterContent adds a content-based skill parsed from a SKILL.md
// file.
func (r *Registry) RegisterContent(s Skill) {
	s.Source = SourceSkillMD
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = &s
}

// Bind installs the executor for an already-registered builtin skill.
// Returns an error if the skill isn't registered or isn't a builtin.
func (r *Registry) Bind(name string, fn ExecuteFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[name]
	if !ok {
		return fmt.Errorf("skill %q not registered", name)
	}
	if s.Source != SourceBuiltin {
		return fmt.Errorf("skill %q is not a builtin", name)
	}
	s.execute = fn
	return nil
}

// Get returns the named skill.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Execute runs a builtin skill's bound executor. Returns handled=false
// if no executor has been bound yet.
func (r *Registry) Execute(ctx context.Context, name, argsText string) (string, bool, error) {
	s, ok := r.Get(name)
	if !ok {
		return "", false, fmt.Errorf("skill %q not found", name)
	}
	if s.execute == nil {
		return "", false, nil
	}
	return s.execute(ctx, argsText)
}

// ContentSkills returns every registered content-based skill, for
// assembling the pipeline's skill-tool catalog.
func (r *Registry) ContentSkills() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Skill
	for _, s := range r.skills {
		if s.Source == SourceSkillMD {
			out = append(out, s)
		}
	}
	return out
}

// ModelInvocableBuiltins returns every registered builtin skill marked
// ModelInvocable, for assembling the pipeline's skill-tool catalog
// alongside content-based skills.
func (r *Registry) ModelInvocableBuiltins() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Skill
	for _, s := range r.skills {
		if s.Source == SourceBuiltin && s.ModelInvocable {
			out = append(out, s)
		}
	}
	return out
}

// UserInvocable returns the skill named by a slash command, if it is
// registered and marked user-invocable.
func (r *Registry) UserInvocable(name string) (*Skill, bool) {
	s, ok := r.Get(name)
	if !ok || !s.UserInvocable {
		return nil, false
	}
	return s, true
}

// ToolName returns the namespaced tool name for a content-based skill:
// skill__<name>.
func ToolName(skillName string) string {
	return "skill__" + skillName
}

// SplitToolName reports whether name is a skill tool call, returning the
// bare skill name.
func SplitToolName(name string) (skillName string, ok bool) {
	rest, found := strings.CutPrefix(name, "skill__")
	if !found {
		return "", false
	}
	return rest, true
}

// SubstituteArguments replaces every "$ARGUMENTS" occurrence in
// instructions with argsText, or "(no arguments)" when argsText is
// empty.
func SubstituteArguments(instructions, argsText string) string {
	if argsText == "" {
		argsText = "(no arguments)"
	}
	return strings.ReplaceAll(instructions, "$ARGUMENTS", argsText)
}
