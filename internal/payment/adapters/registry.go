// Package adapters resolves checkout gateways by provider name.
package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/moviestore/internal/payment/domain"
)

// Registry maps a lowercased provider name to the factory that builds its
// gateway. Later factories replace earlier ones with the same name.
type Registry struct {
	byName map[string]domain.GatewayFactory
}

func NewRegistry(factories ...domain.GatewayFactory) *Registry {
	r := &Registry{byName: make(map[string]domain.GatewayFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if name := providerKey(f.Provider()); name != "" {
			r.byName[name] = f
		}
	}
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	return r.lookup(provider) != nil
}

// Providers lists the registered names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) NewGateway(provider string, cfg domain.GatewayConfig) (domain.Gateway, error) {
	f := r.lookup(provider)
	if f == nil {
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrProviderNotFound, provider, strings.Join(r.Providers(), ", "))
	}
	return f.NewGateway(cfg)
}

func (r *Registry) lookup(provider string) domain.GatewayFactory {
	if r == nil {
		return nil
	}
	return r.byName[providerKey(provider)]
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
