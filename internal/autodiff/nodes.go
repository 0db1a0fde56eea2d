package autodiff

import (
	"fmt"

	"github.com/born-ml/gradarena/internal/pool"
	"github.com/born-ml/gradarena/internal/tensor"
)

// NodeAllocator issues and reclaims graph nodes addressed by NodeID.
//
// Implementations:
//   - NodePool: fixed-capacity arena
//   - HeapNodes: Go heap, grows up to MaxNodes
type NodeAllocator interface {
	// Alloc returns a zeroed node and its id. The id is never NoNode.
	Alloc() (tensor.NodeID, *Node, error)

	// Free releases the node. The id must not be used afterwards.
	Free(id tensor.NodeID) error

	// Node resolves an issued id, or returns nil.
	Node(id tensor.NodeID) *Node

	// Cap returns the maximum number of live nodes, or 0 if unbounded.
	Cap() int
}

// A NodeID packs a slot index (plus one, so no id is NoNode) into its low
// bits and the slot's generation into the rest. A slot's generation changes
// every time it is freed, so ids kept past a release stop resolving instead
// of aliasing the slot's next occupant.
const (
	idSlotBits = 20
	idSlotMask = 1<<idSlotBits - 1
	idGenMask  = 1<<(32-idSlotBits) - 1

	// MaxNodes is the largest number of nodes an allocator can address.
	MaxNodes = idSlotMask
)

func makeID(slot int, gen uint32) tensor.NodeID {
	return tensor.NodeID(gen<<idSlotBits | uint32(slot+1))
}

// splitID returns the slot index (-1 for NoNode) and generation of id.
func splitID(id tensor.NodeID) (int, uint32) {
	return int(id&idSlotMask) - 1, uint32(id) >> idSlotBits
}

// NodePool is a NodeAllocator over a fixed-capacity arena.
type NodePool struct {
	slots *pool.Pool[Node]
	gens  []uint32
}

// NewNodePool creates a node arena with capacity slots.
// capacity may not exceed MaxNodes.
func NewNodePool(capacity int) (*NodePool, error) {
	if capacity > MaxNodes {
		return nil, fmt.Errorf("node pool: %w: %d > %d", pool.ErrInvalidCapacity, capacity, MaxNodes)
	}
	p, err := pool.New[Node]("nodes", capacity)
	if err != nil {
		return nil, err
	}
	return &NodePool{slots: p, gens: make([]uint32, capacity)}, nil
}

// Alloc pops a node from the arena.
func (p *NodePool) Alloc() (tensor.NodeID, *Node, error) {
	i, n, err := p.slots.GetIndex()
	if err != nil {
		return tensor.NoNode, nil, err
	}
	return makeID(i, p.gens[i]), n, nil
}

// Free returns the node to the arena. A stale id is reported as a double
// free.
func (p *NodePool) Free(id tensor.NodeID) error {
	i, gen := splitID(id)
	if i < 0 || i >= len(p.gens) {
		return fmt.Errorf("node %d: %w", id, pool.ErrForeignSlot)
	}
	if p.gens[i] != gen {
		return fmt.Errorf("node %d: stale generation: %w", id, pool.ErrDoubleFree)
	}
	if err := p.slots.PutIndex(i); err != nil {
		return err
	}
	p.gens[i] = (p.gens[i] + 1) & idGenMask
	return nil
}

// Node resolves id, or returns nil if it is free or stale.
func (p *NodePool) Node(id tensor.NodeID) *Node {
	i, gen := splitID(id)
	if i < 0 || i >= len(p.gens) || p.gens[i] != gen {
		return nil
	}
	return p.slots.At(i)
}

// Cap returns the arena capacity.
func (p *NodePool) Cap() int {
	return p.slots.Cap()
}

// Stats returns the arena occupancy.
func (p *NodePool) Stats() pool.Stats {
	return p.slots.Stats()
}

// Close drops the arena storage.
func (p *NodePool) Close() {
	p.slots.Close()
}

// HeapNodes is a NodeAllocator over the Go heap. Freed slots are reused LIFO
// under a new generation. It has no capacity limit of its own beyond the
// MaxNodes ids a NodeID can address.
type HeapNodes struct {
	nodes []*Node
	gens  []uint32
	free  []int
	live  int
}

// NewHeapNodes creates an empty heap node allocator.
func NewHeapNodes() *HeapNodes {
	return &HeapNodes{}
}

// Alloc creates a node.
func (h *HeapNodes) Alloc() (tensor.NodeID, *Node, error) {
	var i int
	if k := len(h.free); k > 0 {
		i = h.free[k-1]
		h.free = h.free[:k-1]
	} else {
		if len(h.nodes) == MaxNodes {
			return tensor.NoNode, nil, fmt.Errorf("heap nodes: %w (%d ids)", pool.ErrExhausted, MaxNodes)
		}
		i = len(h.nodes)
		h.nodes = append(h.nodes, nil)
		h.gens = append(h.gens, 0)
	}
	n := new(Node)
	h.nodes[i] = n
	h.live++
	return makeID(i, h.gens[i]), n, nil
}

// Free drops the node.
func (h *HeapNodes) Free(id tensor.NodeID) error {
	if h.Node(id) == nil {
		return fmt.Errorf("node %d: %w", id, pool.ErrDoubleFree)
	}
	i, _ := splitID(id)
	h.nodes[i] = nil
	h.gens[i] = (h.gens[i] + 1) & idGenMask
	h.free = append(h.free, i)
	h.live--
	return nil
}

// Node resolves id, or returns nil if it is free or stale.
func (h *HeapNodes) Node(id tensor.NodeID) *Node {
	i, gen := splitID(id)
	if i < 0 || i >= len(h.nodes) || h.gens[i] != gen {
		return nil
	}
	return h.nodes[i]
}

// Cap returns 0: the heap allocator is unbounded.
func (h *HeapNodes) Cap() int {
	return 0
}

// Len returns the number of live nodes.
func (h *HeapNodes) Len() int {
	return h.live
}
