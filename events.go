package assetregistry

import (
	"github.com/i5heu/asset-registry/pkg/types"
)

type EventKind int

const (
	EventAssetAdded EventKind = iota
	EventAssetRemoved
	EventAssetRenamed
	EventInMemoryAssetCreated
	EventInMemoryAssetDeleted
	EventPathAdded
	EventPathRemoved
	// EventFilesLoaded fires once, when the first full search has been merged.
	EventFilesLoaded
	EventProgress
)

func (k EventKind) String() string {
	switch k {
	case EventAssetAdded:
		return "AssetAdded"
	case EventAssetRemoved:
		return "AssetRemoved"
	case EventAssetRenamed:
		return "AssetRenamed"
	case EventInMemoryAssetCreated:
		return "InMemoryAssetCreated"
	case EventInMemoryAssetDeleted:
		return "InMemoryAssetDeleted"
	case EventPathAdded:
		return "PathAdded"
	case EventPathRemoved:
		return "PathRemoved"
	case EventFilesLoaded:
		return "FilesLoaded"
	case EventProgress:
		return "Progress"
	}
	return "Unknown"
}

// Progress is a snapshot of the background search.
type Progress struct {
	NumTotalAssets           int
	NumAssetsProcessed       int
	NumAssetsPendingDataLoad int
	IsDiscoveringAssetFiles  bool
}

// Event is delivered to subscribers after the mutation that caused it has
// released the registry lock. Only the fields relevant to Kind are set.
type Event struct {
	Kind          EventKind
	Asset         types.AssetData
	OldObjectPath string
	Object        types.RegistryObject
	Path          string
	Progress      Progress
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Subscribe registers fn for every event. The returned function removes it.
// Handlers may call back into the registry.
func (r *AssetRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.subsMu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// emitLocked queues ev. r.mu must be held.
func (r *AssetRegistry) emitLocked(ev Event) {
	r.pendingEvents = append(r.pendingEvents, ev)
}

// dispatchEvents delivers queued events outside the registry lock. Events
// queued by handlers are delivered by the same loop, in order.
func (r *AssetRegistry) dispatchEvents() {
	r.mu.Lock()
	if r.dispatching {
		r.mu.Unlock()
		return
	}
	r.dispatching = true
	for len(r.pendingEvents) > 0 {
		batch := r.pendingEvents
		r.pendingEvents = nil
		r.mu.Unlock()

		r.subsMu.RLock()
		subs := append([]subscriber(nil), r.subs...)
		r.subsMu.RUnlock()
		for _, ev := range batch {
			for _, s := range subs {
				s.fn(ev)
			}
		}

		r.mu.Lock()
	}
	r.dispatching = false
	r.mu.Unlock()
}

// mutate runs fn under the registry lock and delivers the events it queued.
func (r *AssetRegistry) mutate(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
	r.dispatchEvents()
}
