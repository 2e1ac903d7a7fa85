package model

import (
	"sort"
	"sync"
)

// Registry keeps one EVSE instance per identity so that every component holds
// the same reference.
type Registry struct {
	mu    sync.RWMutex
	evses map[EVSEID]*EVSE
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{evses: map[EVSEID]*EVSE{}}
}

// GetOrCreate returns the EVSE for id, creating it when unknown. The boolean
// reports whether the EVSE was created by this call.
func (r *Registry) GetOrCreate(id EVSEID) (*EVSE, bool) {
	r.mu.RLock()
	e, ok := r.evses[id]
	r.mu.RUnlock()
	if ok {
		return e, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.evses[id]; ok {
		return e, false
	}
	e = NewEVSE(id)
	r.evses[id] = e
	return e, true
}

// Replace stores the version of the EVSE returned by fn, which receives the
// current version or a new EVSE when id is unknown. fn runs under the registry
// lock and must not call back into the registry.
func (r *Registry) Replace(id EVSEID, fn func(cur *EVSE) *EVSE) *EVSE {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.evses[id]
	if !ok {
		cur = NewEVSE(id)
	}
	e := fn(cur)
	r.evses[id] = e
	return e
}

// Get returns the EVSE for id if present.
func (r *Registry) Get(id EVSEID) (*EVSE, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evses[id]
	return e, ok
}

// Delete forgets the EVSE and returns it.
func (r *Registry) Delete(id EVSEID) (*EVSE, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.evses[id]
	delete(r.evses, id)
	return e, ok
}

// List returns all EVSEs sorted by id.
func (r *Registry) List() []*EVSE {
	r.mu.RLock()
	res := make([]*EVSE, 0, len(r.evses))
	for _, e := range r.evses {
		res = append(res, e)
	}
	r.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
