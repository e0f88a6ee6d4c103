package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coachpo/swapflow/errs"
)

// Registry resolves venue addresses to their clients.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

// NewRegistry constructs an empty venue registry.
func NewRegistry() *Registry {
	registry := new(Registry)
	registry.venues = make(map[string]Venue)
	return registry
}

// Register binds a venue address to its client. Re-registering an address
// replaces the previous client.
func (r *Registry) Register(address string, v Venue) error {
	if address == "" {
		return errs.New("venue/registry", errs.CodeInvalid, errs.WithMessage("venue address required"))
	}
	if v == nil {
		return errs.New("venue/registry", errs.CodeInvalid, errs.WithMessage("venue client required"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[address] = v
	return nil
}

// Resolve returns the client for the venue address.
func (r *Registry) Resolve(address string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[address]
	if !ok {
		return nil, errs.New("venue/registry", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("venue %q not registered", address)),
			errs.WithVenueField("address", address))
	}
	return v, nil
}

// Addresses lists registered venue addresses in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]string, 0, len(r.venues))
	for addr := range r.venues {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}
