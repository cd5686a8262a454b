package orchestrator

import "sync"

// debouncer coalesces rapid repeated invocations of the same logical
// operation with a per-kind monotonically increasing generation counter.
// Each invocation bumps the counter; after waiting out the debounce window
// it compares its captured generation against the current one, and a stale
// generation means a newer call superseded it.
type debouncer struct {
	mu   sync.Mutex
	gens map[string]uint64
}

func (d *debouncer) bump(kind string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens == nil {
		d.gens = make(map[string]uint64)
	}
	d.gens[kind]++
	return d.gens[kind]
}

func (d *debouncer) current(kind string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[kind]
}
