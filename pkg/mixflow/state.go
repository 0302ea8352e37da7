package mixflow

import "sync"

// mixerState is the engine's logical state: which device each stream routes
// to (nil = system default), the stored per-stream volumes, and which stream
// each categorized process belongs to. Categories are only removed when the
// user clears them, so they may reference pids without a live session.
type mixerState struct {
	routes        map[StreamID]*string
	volumes       map[StreamID]float32
	appCategories map[uint32]StreamID
}

func newMixerState() mixerState {
	return mixerState{
		routes:        make(map[StreamID]*string),
		volumes:       make(map[StreamID]float32),
		appCategories: make(map[uint32]StreamID),
	}
}

func (s mixerState) clone() mixerState {
	c := newMixerState()

	for stream, id := range s.routes {
		if id == nil {
			c.routes[stream] = nil
			continue
		}

		v := *id
		c.routes[stream] = &v
	}

	for stream, volume := range s.volumes {
		c.volumes[stream] = volume
	}

	for pid, stream := range s.appCategories {
		c.appCategories[pid] = stream
	}

	return c
}

// stateContainer is the single process-wide owner of the mutable mixer
// state. Critical sections are short: lock, read or write, clone out,
// unlock. Persistence always happens on a clone, never under the lock.
type stateContainer struct {
	lock  sync.Mutex
	state mixerState
}

func newStateContainer(initial mixerState) *stateContainer {
	return &stateContainer{state: initial}
}

func (c *stateContainer) snapshot() mixerState {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state.clone()
}

// update applies mutate under the lock and returns a clone of the resulting
// state for the caller to persist outside the critical section.
func (c *stateContainer) update(mutate func(*mixerState)) mixerState {
	c.lock.Lock()
	defer c.lock.Unlock()

	mutate(&c.state)

	return c.state.clone()
}
