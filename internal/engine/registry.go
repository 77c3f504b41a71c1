package engine

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/petrijr/statum/pkg/api"
)

// ConnectorRegistry maps connector keys to the connectors that serve them.
// It is safe for concurrent use.
type ConnectorRegistry struct {
	mu    sync.RWMutex
	byKey map[string]api.Connector
}

// NewConnectorRegistry returns a registry holding conns.
func NewConnectorRegistry(conns ...api.Connector) (*ConnectorRegistry, error) {
	r := &ConnectorRegistry{byKey: make(map[string]api.Connector)}
	for _, c := range conns {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c under c.Key(). Keys must be non-empty and unique.
func (r *ConnectorRegistry) Register(c api.Connector) error {
	if c == nil {
		return fmt.Errorf("connector is nil")
	}
	key := c.Key()
	if strings.TrimSpace(key) == "" {
		return api.ErrEmptyConnectorKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("connector %q already registered", key)
	}
	r.byKey[key] = c
	return nil
}

// Get returns the connector registered under key.
func (r *ConnectorRegistry) Get(key string) (api.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrConnectorNotRegistered, key)
	}
	return c, nil
}

// Keys returns the registered keys in sorted order.
func (r *ConnectorRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
