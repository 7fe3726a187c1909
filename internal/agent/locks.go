package agent

import "sync"

// lockTable hands out one mutex per agent id, serializing the
// increment-then-check reflection cadence for a single agent across
// concurrent foreground calls and discussion turns.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (t *lockTable) get(id int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks == nil {
		t.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}
