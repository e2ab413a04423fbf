// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type (
	// Chain is the ordered composition of every hook on one target plus the
	// captured original.
	Chain struct {
		target   Target
		original Trampoline

		// mu serializes writers; readers only load snap.
		mu   sync.Mutex
		snap atomic.Pointer[snapshot]
		seq  uint64
	}

	// snapshot is immutable once published.
	snapshot struct {
		entries []*entry
	}

	entry struct {
		id      uuid.UUID
		hook    Hook
		seq     uint64
		chain   *Chain
		enabled atomic.Bool
		removed atomic.Bool
	}

	// HookInfo describes one installed hook.
	HookInfo struct {
		Handle   string
		Owner    string
		Priority int
		Enabled  bool
	}
)

func newChain(target Target, original Trampoline) *Chain {
	c := &Chain{target: target, original: original}
	c.snap.Store(&snapshot{})
	return c
}

// Target returns the chain's target.
func (c *Chain) Target() Target { return c.target }

// Len returns the number of installed hooks, enabled or not.
func (c *Chain) Len() int {
	return len(c.snap.Load().entries)
}

// Hooks describes the installed hooks in call order.
func (c *Chain) Hooks() []HookInfo {
	s := c.snap.Load()
	out := make([]HookInfo, len(s.entries))
	for i, e := range s.entries {
		out[i] = HookInfo{
			Handle:   e.id.String(),
			Owner:    e.hook.Owner,
			Priority: e.hook.Priority,
			Enabled:  e.enabled.Load(),
		}
	}
	return out
}

// insert publishes a snapshot with h placed after every hook of greater or equal
// priority.
func (c *Chain) insert(h Hook) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	e := &entry{id: uuid.New(), hook: h, seq: c.seq, chain: c}
	e.enabled.Store(!h.Disabled)

	old := c.snap.Load().entries
	pos := slices.IndexFunc(old, func(x *entry) bool { return x.hook.Priority < h.Priority })
	if pos < 0 {
		pos = len(old)
	}
	next := make([]*entry, 0, len(old)+1)
	next = append(next, old[:pos]...)
	next = append(next, e)
	next = append(next, old[pos:]...)
	c.snap.Store(&snapshot{entries: next})

	return e
}

// remove publishes a snapshot without e and reports how many hooks remain.
func (c *Chain) remove(e *entry) (remaining int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.snap.Load().entries
	idx := slices.Index(old, e)
	if idx < 0 || !e.removed.CompareAndSwap(false, true) {
		return len(old), false
	}
	next := make([]*entry, 0, len(old)-1)
	next = append(next, old[:idx]...)
	next = append(next, old[idx+1:]...)
	c.snap.Store(&snapshot{entries: next})

	return len(next), true
}

// dispatch runs the chain on the current snapshot.
func (c *Chain) dispatch(args ...any) any {
	return c.snap.Load().invoke(0, c.original, args)
}

func (s *snapshot) invoke(from int, original Trampoline, args []any) any {
	for i := from; i < len(s.entries); i++ {
		e := s.entries[i]
		if !e.enabled.Load() {
			continue
		}
		next := func(a ...any) any {
			return s.invoke(i+1, original, a)
		}
		return e.hook.Replacement(next, args...)
	}
	return original(args...)
}
