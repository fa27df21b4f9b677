package runner

import (
	"os"
	"sync"
)

// HandleRegistry maps live invocation ids to their OS process handles so an
// administrative action can stop a run that is still in flight.
//
// The registry is scoped to one engine process and is not durable: a restart
// loses every handle, and any invocation that was in flight runs orphaned
// until it terminates and writes its own terminal run record.
type HandleRegistry struct {
	mu        sync.Mutex
	processes map[string]*os.Process
}

// NewHandleRegistry creates an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{processes: make(map[string]*os.Process)}
}

// Track records the process behind an invocation.
func (h *HandleRegistry) Track(invocationID string, process *os.Process) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.processes[invocationID] = process
}

// Release forgets the invocation's handle.
func (h *HandleRegistry) Release(invocationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.processes, invocationID)
}

// Stop kills the process behind an invocation. Returns false when the
// invocation is unknown to this engine process.
func (h *HandleRegistry) Stop(invocationID string) (bool, error) {
	h.mu.Lock()
	process, ok := h.processes[invocationID]
	h.mu.Unlock()

	if !ok {
		return false, nil
	}

	if err := process.Kill(); err != nil {
		return true, err
	}

	return true, nil
}

// Live returns the number of tracked invocations.
func (h *HandleRegistry) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.processes)
}
