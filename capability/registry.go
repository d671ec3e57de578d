package capability

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrUnknownVariant is returned by New for a name no variant registered.
	ErrUnknownVariant = errors.New("capability: unknown variant")
	// ErrUnknownCommand is returned when a command id has no table entry.
	ErrUnknownCommand = errors.New("capability: unknown command id")
	// ErrUnsupported is recorded by a variant for a SID it does not serve.
	ErrUnsupported = errors.New("capability: service not supported")
	// ErrBadPayload is recorded when a request carries the wrong payload.
	ErrBadPayload = errors.New("capability: invalid request payload")
	// ErrPowerState is recorded when a low power request is not valid in
	// the current sleep state.
	ErrPowerState = errors.New("capability: invalid low power state")
)

// Factory returns a fresh variant instance.
type Factory func() Capability

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a variant available by name. It panics if name is
// already taken, so it is meant to be called from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("capability: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("capability: Register called twice for variant " + name)
	}
	registry[name] = f
}

// New instantiates the variant registered as name.
func New(name string) (Capability, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return f(), nil
}

// Variants returns the sorted names of the registered variants.
func Variants() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
