package bridge

import (
	"slices"
	"sync"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ident"
	"github.com/roach88/storebridge/internal/observe"
	"github.com/roach88/storebridge/internal/protocol"
)

// Listener receives monitor commands addressed to one instance.
type Listener func(cmd protocol.Command)

type listenerEntry struct {
	id uint64
	fn Listener
}

// instance is one registered store or connection. id, name, conn, cfg, x
// and store never change after registration; the rest is guarded by the
// registry mutex.
type instance struct {
	id    int
	name  string
	conn  observe.ConnectionType
	cfg   *config.Config
	x     *config.Extracted
	store Store // original store, nil for generic connections
	wrap  Store

	stopped      bool
	unsubscribed bool
	nextActionID int
	synced       bool // monitor holds a full snapshot
}

// InstanceInfo describes a registered instance.
type InstanceInfo struct {
	ID         int                    `json:"id"`
	Name       string                 `json:"name"`
	Connection observe.ConnectionType `json:"connectionType"`
	Stopped    bool                   `json:"stopped"`
	Subscribed bool                   `json:"subscribed"`
}

// Registry is the context object shared by every instance of a page: the
// id allocator, the registered instances, the last-observation cache and
// the listener bookkeeping.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	ids   *ident.Allocator
	cache *observe.Cache

	mu           sync.Mutex
	instances    map[int]*instance
	listeners    map[int][]listenerEntry
	nextListener uint64
}

// NewRegistry creates an empty registry whose first allocated id is 1.
func NewRegistry() *Registry {
	return NewRegistryWith(ident.NewAllocator())
}

// NewRegistryWith creates an empty registry drawing ids from ids.
func NewRegistryWith(ids *ident.Allocator) *Registry {
	return &Registry{
		ids:       ids,
		cache:     observe.NewCache(),
		instances: make(map[int]*instance),
		listeners: make(map[int][]listenerEntry),
	}
}

// IDs returns the registry's allocator.
func (r *Registry) IDs() *ident.Allocator {
	return r.ids
}

// Cache returns the last-observation cache.
func (r *Registry) Cache() *observe.Cache {
	return r.cache
}

// register stores inst, replacing any earlier instance with the same id.
func (r *Registry) register(inst *instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.id] = inst
}

func (r *Registry) lookup(id int) (*instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Instances lists the registered instances ordered by id.
func (r *Registry) Instances() []InstanceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]InstanceInfo, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, InstanceInfo{
			ID:         inst.id,
			Name:       inst.name,
			Connection: inst.conn,
			Stopped:    inst.stopped,
			Subscribed: !inst.unsubscribed,
		})
	}
	slices.SortFunc(out, func(a, b InstanceInfo) int { return a.ID - b.ID })
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// addListener registers fn for id and returns a func removing exactly that
// registration.
func (r *Registry) addListener(id int, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextListener++
	key := r.nextListener
	r.listeners[id] = append(r.listeners[id], listenerEntry{id: key, fn: fn})
	if inst, ok := r.instances[id]; ok {
		inst.unsubscribed = false
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		entries := r.listeners[id]
		for i, e := range entries {
			if e.id == key {
				r.listeners[id] = slices.Delete(entries, i, i+1)
				break
			}
		}
		if len(r.listeners[id]) == 0 {
			delete(r.listeners, id)
		}
	}
}

// removeListeners drops every listener of id and marks it unsubscribed.
// The instance stays registered and its store stays wrapped.
func (r *Registry) removeListeners(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
	if inst, ok := r.instances[id]; ok {
		inst.unsubscribed = true
	}
}

func (r *Registry) listenersFor(id int) []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[id]
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}

// ListenerCount returns the number of listeners registered for id.
func (r *Registry) ListenerCount(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[id])
}

func (r *Registry) setStopped(id int, stopped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.stopped = stopped
	}
}

// setSynced records whether the monitor holds a full snapshot of id, so an
// UPDATE can answer with PARTIAL_STATE.
func (r *Registry) setSynced(id int, synced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.synced = synced
	}
}

func (r *Registry) isSynced(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return ok && inst.synced
}

func (r *Registry) isStopped(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return ok && inst.stopped
}

// advance bumps the relay counter of id and returns the next action id.
// Id 0 is the initial state, so the first dispatch yields 2. Unregistered
// ids return 0.
func (r *Registry) advance(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return 0
	}
	if inst.nextActionID == 0 {
		inst.nextActionID = 1
	}
	inst.nextActionID++
	return inst.nextActionID
}
