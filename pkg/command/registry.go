package command

import "sort"

// Registry maps command names to handlers. All registration happens while
// the gateway is being constructed; afterwards the registry is read-only,
// so lookups take no locks.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its own name. A second registration of the
// same name fails with a DuplicateCommand error and leaves the first
// handler in place.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		return NewError(KindDuplicateCommand, "command already registered: %s", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup resolves a command name to its handler, failing with an
// UnknownCommand error when nothing is registered under that name.
func (r *Registry) Lookup(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, NewError(KindUnknownCommand, "unknown command: %s", name)
	}
	return h, nil
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered commands.
func (r *Registry) Len() int { return len(r.handlers) }
