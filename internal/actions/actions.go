// Package actions defines the action model and the explicit registry the
// dispatch layer serves from. Every invocable operation is an Action with a
// validated request type; registration happens once at startup, there is no
// package-level registry.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for action dispatch.
var (
	// ErrInvalidInput is returned when an action request fails to decode or
	// validate. The dispatcher maps it to a client error.
	ErrInvalidInput = errors.New("actions: invalid input")

	// ErrUnknownAction is returned when no action is registered under the
	// requested name.
	ErrUnknownAction = errors.New("actions: unknown action")

	// ErrAlreadyRegistered is returned when two actions claim the same name.
	ErrAlreadyRegistered = errors.New("actions: action already registered")
)

// Handler executes one action against a raw JSON request.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Action describes one invocable operation.
type Action struct {
	Name        string
	Description string

	// Mutating marks actions that change cloud state. The dispatcher blocks
	// them in dry-run mode.
	Mutating bool

	Handler Handler
}

// Result is the envelope every successful action response is wrapped in.
type Result struct {
	Success bool `json:"success"`
	Results any  `json:"results"`
}

// Validator is implemented by request types that apply field defaults and
// check required fields. Validation runs once at the boundary, before the
// handler body.
type Validator interface {
	Validate() error
}

// Typed adapts a strongly typed handler to the raw Handler signature. The
// request is JSON-decoded, validated when *Req implements Validator, and
// passed to fn. Decode and validation failures wrap ErrInvalidInput.
func Typed[Req any](fn func(ctx context.Context, req Req) (any, error)) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var req Req
		if len(input) > 0 {
			if err := json.Unmarshal(input, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
		if v, ok := any(&req).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
		return fn(ctx, req)
	}
}

// Registry is an explicit action table built at startup and passed by
// reference to the dispatcher. It is not safe for concurrent mutation;
// register everything before serving.
type Registry struct {
	actions map[string]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register adds an action. A missing name or handler, or a duplicate name,
// is a startup error.
func (r *Registry) Register(a *Action) error {
	if a == nil || a.Name == "" {
		return errors.New("actions: action must have a name")
	}
	if a.Handler == nil {
		return fmt.Errorf("actions: action %s has no handler", a.Name)
	}
	if _, ok := r.actions[a.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

// Get returns the named action.
func (r *Registry) Get(name string) (*Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// List returns all registered actions sorted by name.
func (r *Registry) List() []*Action {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Action, 0, len(names))
	for _, name := range names {
		out = append(out, r.actions[name])
	}
	return out
}
