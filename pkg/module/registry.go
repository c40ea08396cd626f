// SPDX-License-Identifier: AGPL-3.0-or-later

package module

import (
	"fmt"
	"sort"
	"sync"

	"g8r/pkg/model"
)

const registryName = "module.Registry"

// Instrumentation hooks for observability (optional).
var (
	OnModuleRegistered func(name string)
	OnModuleLookup     func(dutyType string, found bool)
)

// Registry is a process-wide, immutable-after-startup mapping from duty_type
// to the module that handles it (spec.md §4.2, §5 "module registry is
// immutable after initialization"). Selection picks the first registered
// module whose SupportedDutyTypes() contains the requested duty_type, in
// registration order.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a module to the registry. Registering a module whose Name()
// collides with an already-registered one is a contract violation and
// panics, matching the teacher's provider-registration idiom.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if name == "" {
		panic(fmt.Sprintf("%s.Register: module has empty name", registryName))
	}
	for _, existing := range r.modules {
		if existing.Name() == name {
			panic(fmt.Sprintf("%s.Register: duplicate module name %q", registryName, name))
		}
	}

	r.modules = append(r.modules, m)

	if OnModuleRegistered != nil {
		OnModuleRegistered(name)
	}
}

// ForDutyType selects the first registered module supporting dutyType.
func (r *Registry) ForDutyType(dutyType string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.modules {
		if supports(m, dutyType) {
			if OnModuleLookup != nil {
				OnModuleLookup(dutyType, true)
			}
			return m, nil
		}
	}
	if OnModuleLookup != nil {
		OnModuleLookup(dutyType, false)
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedDutyType, dutyType)
}

// Names returns all registered module names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global default registry, populated by built-in
// modules' init() functions.
var DefaultRegistry = NewRegistry()

// Register registers a module in the default registry.
func Register(m Module) {
	DefaultRegistry.Register(m)
}
