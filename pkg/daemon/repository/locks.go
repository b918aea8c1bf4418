package repository

import (
	"sort"
	"sync"
)

// lockEntry is a project lock and the number of callers holding or
// waiting on it.
type lockEntry struct {
	sync.RWMutex
	refs int
}

// lockTable hands out one RWMutex per project id. An entry lives only while
// someone holds or waits on it, so ids that are looked up once do not
// accumulate.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

func (t *lockTable) acquire(id string) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.locks[id]
	if !ok {
		e = &lockEntry{}
		t.locks[id] = e
	}
	e.refs++
	return e
}

func (t *lockTable) release(id string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(t.locks, id)
	}
}

// lock takes the write lock for id and returns its release.
func (t *lockTable) lock(id string) func() {
	e := t.acquire(id)
	e.Lock()
	return func() {
		e.Unlock()
		t.release(id, e)
	}
}

// rlock takes read locks for the distinct ids in sorted order and returns
// a release for all of them.
func (t *lockTable) rlock(ids ...string) func() {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	sort.Strings(distinct)

	held := make([]*lockEntry, 0, len(distinct))
	for _, id := range distinct {
		e := t.acquire(id)
		e.RLock()
		held = append(held, e)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].RUnlock()
			t.release(distinct[i], held[i])
		}
	}
}
