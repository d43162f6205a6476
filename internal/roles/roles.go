// Package roles implements the role registry spec.md §9 calls for: a
// mapping from free-form role strings to display/prompt/tool defaults,
// with a runtime-extensible custom table and a generic fallback for
// roles unknown at compile time.
package roles

import "sync"

// Record describes everything the engine needs to launch an agent of a
// given role (SPEC_FULL.md §11).
type Record struct {
	DisplayName  string
	Color        string
	Icon         string
	SystemPrompt string
	AllowedTools []string
	DefaultModel string
}

var readOnlyTools = []string{"Read", "Glob", "Grep"}
var readWriteTools = []string{"Read", "Edit", "Write", "Bash", "Glob", "Grep"}

var builtin = map[string]Record{
	"orchestrator": {
		DisplayName:  "Orchestrator",
		Color:        "#eab308",
		Icon:         "Workflow",
		SystemPrompt: "",
		AllowedTools: readWriteTools,
	},
	"developer": {
		DisplayName:  "Developer",
		Color:        "#3b82f6",
		Icon:         "Code2",
		SystemPrompt: "You are a developer. Implement the assigned task thoroughly and run any relevant tests.",
		AllowedTools: readWriteTools,
	},
	"tester": {
		DisplayName:  "Tester",
		Color:        "#22c55e",
		Icon:         "TestTube2",
		SystemPrompt: "You are a tester. Write and run tests covering the assigned task, and report failures clearly.",
		AllowedTools: readWriteTools,
	},
	"security-reviewer": {
		DisplayName:  "Security Reviewer",
		Color:        "#f97316",
		Icon:         "Shield",
		SystemPrompt: "You are a security reviewer. Inspect the assigned change for vulnerabilities; do not modify files.",
		AllowedTools: readOnlyTools,
	},
	"devsecops": {
		DisplayName:  "DevSecOps",
		Color:        "#f97316",
		Icon:         "Shield",
		SystemPrompt: "You are a devsecops specialist. Inspect the assigned change for operational and security risk; do not modify files.",
		AllowedTools: readOnlyTools,
	},
	"documentation": {
		DisplayName:  "Documentation",
		Color:        "#8b5cf6",
		Icon:         "FileText",
		SystemPrompt: "You are a documentation specialist. Update or author documentation for the assigned task.",
		AllowedTools: readWriteTools,
	},
	"business-dev": {
		DisplayName:  "Business Development",
		Color:        "#a855f7",
		Icon:         "TrendingUp",
		SystemPrompt: "You are a business development specialist. Complete the assigned task thoroughly.",
		AllowedTools: readWriteTools,
	},
}

const (
	fallbackColor = "#6b7280"
	fallbackIcon  = "Bot"
)

// Registry resolves a role name to a Record, consulting the built-in
// table, then a runtime-registered custom table, then a generic
// fallback. An unknown role never errors (spec.md §9).
type Registry struct {
	mu     sync.RWMutex
	custom map[string]Record
}

// NewRegistry returns an empty Registry (no custom roles registered).
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]Record)}
}

// Register adds or replaces a custom role definition.
func (r *Registry) Register(role string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[role] = rec
}

// Resolve returns the Record for role, falling back to a generic
// "role specialist" record when role matches neither the built-in nor
// the custom table.
func (r *Registry) Resolve(role string) Record {
	if rec, ok := builtin[role]; ok {
		return rec
	}
	r.mu.RLock()
	rec, ok := r.custom[role]
	r.mu.RUnlock()
	if ok {
		return rec
	}
	return Record{
		DisplayName:  role,
		Color:        fallbackColor,
		Icon:         fallbackIcon,
		SystemPrompt: "You are a " + role + " specialist. Complete the assigned task thoroughly.",
		AllowedTools: readWriteTools,
	}
}
