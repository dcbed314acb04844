package mcp

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// ToolHandler executes a tool with validated arguments
type ToolHandler func(ctx context.Context, args Arguments) (*ToolResult, error)

type registryEntry struct {
	descriptor *ToolDescriptor
	handler    ToolHandler
}

// Registry maps tool names to descriptors and handlers.
// Tools are listed in registration order.
// Registry is safe for concurrent use; once frozen it is read-only.
type Registry struct {
	lock    sync.RWMutex
	entries map[string]*registryEntry
	order   []string
	frozen  bool
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Register adds a tool.
// The descriptor is copied, later changes to it do not affect the registry.
func (r *Registry) Register(descriptor *ToolDescriptor, handler ToolHandler) error {
	if err := validateDescriptor(descriptor); err != nil {
		return err
	}
	if handler == nil {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q has no handler", descriptor.Name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "unable to register %q", descriptor.Name)
	}
	if _, ok := r.entries[descriptor.Name]; ok {
		return errors.Wrapf(ErrDuplicateTool, "tool %q", descriptor.Name)
	}

	r.entries[descriptor.Name] = &registryEntry{
		descriptor: descriptor.Clone(),
		handler:    handler,
	}
	r.order = append(r.order, descriptor.Name)

	logger.KV(xlog.DEBUG, "registered", descriptor.Name, "params", len(descriptor.Parameters))
	return nil
}

func validateDescriptor(d *ToolDescriptor) error {
	if d == nil {
		return errors.Wrap(ErrInvalidDescriptor, "nil descriptor")
	}
	if d.Name == "" {
		return errors.Wrap(ErrInvalidDescriptor, "empty name")
	}
	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q has a parameter with empty name", d.Name)
		}
		if seen[p.Name] {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q has duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Get returns a copy of the descriptor and the handler of the named tool
func (r *Registry) Get(name string) (*ToolDescriptor, ToolHandler, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotFound, "tool %q", name)
	}
	return e.descriptor.Clone(), e.handler, nil
}

// List returns copies of all descriptors in registration order
func (r *Registry) List() []*ToolDescriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.entries[name].descriptor.Clone())
	}
	return list
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.order)
}

// Freeze makes the registry read-only
func (r *Registry) Freeze() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.frozen = true
}

// Frozen returns true if the registry is read-only
func (r *Registry) Frozen() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.frozen
}

// Fingerprint returns a hash of the ordered tool names,
// two registries with the same tools in the same order have the same fingerprint
func (r *Registry) Fingerprint() uint64 {
	r.lock.RLock()
	defer r.lock.RUnlock()

	h := xxhash.New()
	for _, name := range r.order {
		_, _ = h.WriteString(name)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
