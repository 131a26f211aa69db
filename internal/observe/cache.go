// Package observe keeps the last observation of every bridged instance and
// reports lightweight annotation events to an external sink.
package observe

import (
	"slices"
	"sync"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
)

// Observation is the most recent dispatch seen for one instance.
type Observation struct {
	Action    ir.Object
	State     ir.Value
	Extracted *config.Extracted
	Config    *config.Config
}

// InstanceID returns the id the observation belongs to, 0 when unknown.
func (o Observation) InstanceID() int {
	if o.Extracted == nil {
		return 0
	}
	return o.Extracted.InstanceID
}

// Cache maps instance ids to their last observation. Entries are
// overwritten, never merged, and never evicted.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]Observation
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[int]Observation)}
}

// Record stores obs under its instance id, replacing any earlier entry.
func (c *Cache) Record(obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[obs.InstanceID()] = obs
}

// Get returns the last observation for id.
func (c *Cache) Get(id int) (Observation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obs, ok := c.entries[id]
	return obs, ok
}

// Len returns the number of instances with an observation.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns every observation ordered by instance id.
func (c *Cache) Snapshot() []Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observation, len(ids))
	for i, id := range ids {
		out[i] = c.entries[id]
	}
	return out
}
