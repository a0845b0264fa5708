package tool

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pagesense-ai/pagesense/internal/util"
	"github.com/pagesense-ai/pagesense/logging"
)

// Registry is the process-wide tool catalog keyed by name. It preserves
// registration order for catalog rendering: categories appear in the order
// first seen, tools within a category in registration order. Re-registering
// a name replaces the instance in place (last writer wins) and logs a
// warning; the catalog order and count are unchanged.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string // tool names in registration order
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:  map[string]Tool{},
		logger: logging.OrNoOp(logger),
	}
}

// Register adds a tool. A second registration under the same name replaces
// the first and logs a warning.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Warn("tool.registry.replaced", "tool", t.Name())
	} else {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool and whether it was found.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ByCategory returns the tools in a category, in registration order.
func (r *Registry) ByCategory(category string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, name := range r.order {
		if t := r.tools[name]; t.Category() == category {
			out = append(out, t)
		}
	}
	return out
}

// Categories returns category names in first-seen registration order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		seen = map[string]bool{}
		out  []string
	)
	for _, name := range r.order {
		cat := r.tools[name].Category()
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

// Descriptions renders the human-readable catalog used for prompt
// construction: grouped by category, each tool with its description and
// each parameter with type, required marker and description.
func (r *Registry) Descriptions(lang string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, cat := range r.categoriesLocked() {
		fmt.Fprintf(&b, "## %s\n", cat)
		for _, name := range r.order {
			t := r.tools[name]
			if t.Category() != cat {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description(lang))
			spec := t.Parameters()
			if spec == nil {
				continue
			}
			required := map[string]bool{}
			for _, req := range spec.Required {
				required[req] = true
			}
			for _, pname := range sortedPropertyNames(spec) {
				prop := spec.Properties[pname]
				marker := "optional"
				if required[pname] {
					marker = "required"
				}
				desc := prop.Description
				if lang == "zh" && prop.DescriptionZh != "" {
					desc = prop.DescriptionZh
				}
				fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", pname, prop.Type, marker, desc)
			}
		}
	}
	return b.String()
}

// Schema is the structured form of one catalog entry.
type Schema struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Parameters  *ParameterSpec `json:"parameters"`
}

// Schemas returns the catalog in structured form, registration-ordered.
func (r *Registry) Schemas(lang string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Schema{
			Name:        t.Name(),
			Category:    t.Category(),
			Description: t.Description(lang),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Search returns the names of tools whose name, description or category
// contains the query, case-insensitively, in registration order.
func (r *Registry) Search(query, lang string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(query)
	var out []string
	for _, name := range r.order {
		t := r.tools[name]
		haystack := strings.ToLower(t.Name() + " " + t.Description(lang) + " " + t.Category())
		if strings.Contains(haystack, needle) {
			out = append(out, t.Name())
		}
	}
	return out
}

// Validate checks args against the named tool's parameter spec and reports
// the outcome as an envelope, without executing anything.
func (r *Registry) Validate(name string, args map[string]any) *Result {
	t, ok := r.Get(name)
	if !ok {
		return Fail(CodeUnknownTool).
			WithMessages(fmt.Sprintf("未知工具: %s", name), fmt.Sprintf("unknown tool: %s", name))
	}
	if errs := util.ValidateParameters(args, t.Parameters()); len(errs) > 0 {
		return FailValidation(errs).
			WithMessages("参数校验失败", "parameter validation failed")
	}
	return Ok(nil).WithMessages("参数校验通过", "parameters valid")
}

func (r *Registry) categoriesLocked() []string {
	var (
		seen = map[string]bool{}
		out  []string
	)
	for _, name := range r.order {
		cat := r.tools[name].Category()
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

func sortedPropertyNames(spec *ParameterSpec) []string {
	names := make([]string, 0, len(spec.Properties))
	for name := range spec.Properties {
		names = append(names, name)
	}
	required := map[string]bool{}
	for _, req := range spec.Required {
		required[req] = true
	}
	// Stable catalog output: required params first, then lexicographic.
	sort.Slice(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if required[a] != required[b] {
			return required[a]
		}
		return a < b
	})
	return names
}
