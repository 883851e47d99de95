package gateway

import (
	"sync"

	"github.com/billing/backend/internal/domain/payment"
)

// Registry holds the configured gateway plugins by name
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]payment.GatewayPlugin
}

// NewRegistry creates a new empty Registry
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]payment.GatewayPlugin),
	}
}

// Register adds a plugin under its own name, replacing any previous one
func (r *Registry) Register(plugin payment.GatewayPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[plugin.Name()] = plugin
}

// Get returns the plugin with the given name
func (r *Registry) Get(name string) (payment.GatewayPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[name]
	if !ok {
		return nil, payment.ErrGatewayNotConfigured
	}
	return plugin, nil
}

// Names returns the names of all registered plugins
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	return names
}
