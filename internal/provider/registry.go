package provider

import (
	"fmt"
	"sync"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// Registry is the factory mapping role → provider instance (spec §4.1,
// spec §2 L1 "Provider registry").
type Registry struct {
	mu        sync.RWMutex
	providers map[model.Role]Provider
}

// NewRegistry builds a registry from an explicit role→provider map. The
// caller (cmd/sentineld's wiring code) constructs concrete providers from
// config.LLMConfig and passes them here.
func NewRegistry(providers map[model.Role]Provider) *Registry {
	return &Registry{providers: providers}
}

// Resolution is the outcome of a role lookup: the provider to use, and the
// role that should be tagged on the cost ledger (spec §4.1: "tagged by the
// *requesting* role, not the fallback").
type Resolution struct {
	Provider      Provider
	RequestedRole model.Role
}

// Resolve picks a provider by role. When the requested role has no
// configured provider, it falls back to the default role's provider; if
// even the default role has none, an error is returned.
func (r *Registry) Resolve(role model.Role) (*Resolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[role]; ok && p != nil {
		return &Resolution{Provider: p, RequestedRole: role}, nil
	}
	if p, ok := r.providers[model.RoleDefault]; ok && p != nil {
		return &Resolution{Provider: p, RequestedRole: role}, nil
	}
	return nil, fmt.Errorf("provider registry: no provider configured for role %q and no default fallback", role)
}

// Set registers or replaces the provider for a role (used by hot config reload).
func (r *Registry) Set(role model.Role, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.providers == nil {
		r.providers = map[model.Role]Provider{}
	}
	r.providers[role] = p
}
