package apptwin

import "sync"

// FaultSet holds the active Faults; safe for concurrent use.
type FaultSet struct {
	mu sync.RWMutex
	f  Faults
}

// Get returns a copy of the active faults.
func (fs *FaultSet) Get() Faults {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.f
}

// Set replaces the active faults.
func (fs *FaultSet) Set(f Faults) {
	fs.mu.Lock()
	fs.f = f
	fs.mu.Unlock()
}

// Reset clears every fault.
func (fs *FaultSet) Reset() { fs.Set(Faults{}) }
