package compaction

import "sync"

// Registry holds one Detector per pane, created lazily on first chunk.
type Registry struct {
	mu        sync.Mutex
	detectors map[string]*Detector
}

func NewRegistry() *Registry {
	return &Registry{detectors: map[string]*Detector{}}
}

// Get returns (creating if needed) the Detector for paneID.
func (r *Registry) Get(paneID string) *Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.detectors[paneID]
	if d == nil {
		d = NewDetector()
		r.detectors[paneID] = d
	}
	return d
}

// Clear removes paneID's detector, resetting its compaction state.
func (r *Registry) Clear(paneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.detectors, paneID)
}
