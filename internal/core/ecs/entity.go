package ecs

import (
	"fmt"
	"sync"
)

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Generations start at 1, so the zero ID never names a live entity.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%dv%d", id.Index(), id.Generation())
}

// Liveness is what the pool knows about an EntityID.
type Liveness uint8

const (
	Dead Liveness = iota
	// Reserved IDs were handed out by a lazy spawn that has not been
	// finalized yet. They are real IDs but have no components.
	Reserved
	Alive
)

func (l Liveness) String() string {
	switch l {
	case Reserved:
		return "reserved"
	case Alive:
		return "alive"
	default:
		return "dead"
	}
}

type slotState uint8

const (
	slotFree slotState = iota
	slotReserved
	slotAlive
)

// EntityPool manages entity allocation with generational indices and a free list.
// It is safe for concurrent use so handlers running in parallel can reserve IDs.
type EntityPool struct {
	mu          sync.RWMutex
	generations []uint32
	states      []slotState
	freeList    []uint32
	nextIndex   uint32
	alive       int
}

func NewEntityPool(capacity int) *EntityPool {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EntityPool{
		generations: make([]uint32, 0, capacity),
		states:      make([]slotState, 0, capacity),
		freeList:    make([]uint32, 0, capacity/4),
	}
}

func (p *EntityPool) allocLocked(state slotState) EntityID {
	var idx uint32
	if n := len(p.freeList); n > 0 {
		idx = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
	} else {
		idx = p.nextIndex
		p.nextIndex++
		p.generations = append(p.generations, 1)
		p.states = append(p.states, slotFree)
	}
	p.states[idx] = state
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) matchesLocked(id EntityID) bool {
	idx := id.Index()
	return idx < p.nextIndex && p.generations[idx] == id.Generation()
}

// Create returns an immediately live entity.
func (p *EntityPool) Create() EntityID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive++
	return p.allocLocked(slotAlive)
}

// Reserve allocates an ID that stays Reserved until Finish.
func (p *EntityPool) Reserve() EntityID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked(slotReserved)
}

// Finish promotes a reserved ID to alive. It reports false if the ID is not
// currently reserved.
func (p *EntityPool) Finish(id EntityID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.matchesLocked(id) || p.states[id.Index()] != slotReserved {
		return false
	}
	p.states[id.Index()] = slotAlive
	p.alive++
	return true
}

func (p *EntityPool) Alive(id EntityID) bool {
	return p.Liveness(id) == Alive
}

func (p *EntityPool) Liveness(id EntityID) Liveness {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.matchesLocked(id) {
		return Dead
	}
	switch p.states[id.Index()] {
	case slotAlive:
		return Alive
	case slotReserved:
		return Reserved
	default:
		return Dead
	}
}

// Destroy frees the slot and bumps its generation so every outstanding copy
// of id goes stale. A slot whose generation would wrap is retired instead of
// recycled, so an old ID can never match a later occupant.
func (p *EntityPool) Destroy(id EntityID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := id.Index()
	if !p.matchesLocked(id) || p.states[idx] == slotFree {
		return fmt.Errorf("destroy %s: %w", id, ErrStaleEntity)
	}
	if p.states[idx] == slotAlive {
		p.alive--
	}
	p.states[idx] = slotFree
	p.generations[idx]++
	if p.generations[idx] == 0 {
		return nil
	}
	p.freeList = append(p.freeList, idx)
	return nil
}

// Len is the number of live entities. Reserved IDs are not counted.
func (p *EntityPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alive
}

// Live returns the live entities in slot order.
func (p *EntityPool) Live() []EntityID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]EntityID, 0, p.alive)
	for idx := uint32(0); idx < p.nextIndex; idx++ {
		if p.states[idx] == slotAlive {
			out = append(out, NewEntityID(idx, p.generations[idx]))
		}
	}
	return out
}
