package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Descriptor is an agent's self-description: identity, declared collection
// interval and the schema of the settings it accepts.
type Descriptor struct {
	ID              string            `json:"id"`
	Kind            string            `json:"kind"`
	IntervalSeconds int               `json:"interval_seconds"`
	ConfigSchema    map[string]string `json:"config_schema,omitempty"`
}

// Agent is the collection contract the scheduler drives. Collect returns a
// map of metric name to value, or a generic error on any internal fault.
type Agent interface {
	Describe() Descriptor
	Collect(ctx context.Context, settings map[string]string) (map[string]float64, error)
}

// Factory builds an agent instance with the given identity and interval.
type Factory func(id string, intervalSeconds int) (Agent, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an agent kind constructible by New. Called from the
// concrete agents' init functions.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New constructs an agent of the given kind.
func New(kind, id string, intervalSeconds int) (Agent, error) {
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
	return f(id, intervalSeconds)
}

// Kinds lists the registered agent kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
