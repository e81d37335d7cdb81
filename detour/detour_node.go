package detour

import (
	"container/heap"

	"github.com/gorustyt/navrt/common"
)

const (
	DT_NODE_OPEN            = 0x01
	DT_NODE_CLOSED          = 0x02
	DT_NODE_PARENT_DETACHED = 0x04 // parent of the node is not adjacent. Found using raycast.
)

type DtNodeIndex uint32

const DT_NULL_IDX = ^DtNodeIndex(0)

const DT_NODE_PARENT_BITS = 24
const DT_NODE_STATE_BITS = 2

// / Maximum number of search states per polygon. Tile boundary crossings get their own state.
const DT_MAX_STATES_PER_NODE = 1 << DT_NODE_STATE_BITS

type DtNode struct {
	Pos   [3]float32 ///< Position of the node.
	Cost  float32    ///< Cost from previous node to current node.
	Total float32    ///< Cost up to the node.
	Pidx  uint32     ///< Index to parent node.
	State uint8      ///< extra state information. A polyRef can have multiple nodes with different extra info. see DT_MAX_STATES_PER_NODE
	Flags uint8      ///< Node flags. A combination of dtNodeFlags.
	Id    DtPolyRef  ///< Polygon ref the node corresponds to.

	poolIdx uint32 // slot in the owning pool
	seq     uint64 // push order, breaks cost ties
	heapIdx int
}

// DtNodePool is a fixed capacity hash of search nodes keyed by (polygon ref, state).
type DtNodePool struct {
	m_nodes     []DtNode
	m_first     []DtNodeIndex
	m_next      []DtNodeIndex
	m_maxNodes  int
	m_hashSize  int
	m_nodeCount int
}

func NewDtNodePool(maxNodes, hashSize int) *DtNodePool {
	common.AssertTrue(common.NextPow2(uint32(hashSize)) == uint32(hashSize), "hash size must be a power of two")
	common.AssertTrue(maxNodes > 0 && maxNodes <= (1<<DT_NODE_PARENT_BITS)-1)
	p := &DtNodePool{
		m_maxNodes: maxNodes,
		m_hashSize: hashSize,
		m_nodes:    make([]DtNode, maxNodes),
		m_next:     make([]DtNodeIndex, maxNodes),
		m_first:    make([]DtNodeIndex, hashSize),
	}
	for i := range p.m_first {
		p.m_first[i] = DT_NULL_IDX
	}
	for i := range p.m_next {
		p.m_next[i] = DT_NULL_IDX
	}
	return p
}

func hashRef(a DtPolyRef) uint32 {
	a += ^(a << 15)
	a ^= a >> 10
	a += a << 3
	a ^= a >> 6
	a += ^(a << 11)
	a ^= a >> 16
	return uint32(a)
}

func (p *DtNodePool) Clear() {
	for i := range p.m_first {
		p.m_first[i] = DT_NULL_IDX
	}
	p.m_nodeCount = 0
}

// GetNode returns the node for (id, state), allocating it when absent. It returns nil when the pool is full.
func (p *DtNodePool) GetNode(id DtPolyRef, state uint8) *DtNode {
	bucket := hashRef(id) & uint32(p.m_hashSize-1)
	i := p.m_first[bucket]
	for i != DT_NULL_IDX {
		if p.m_nodes[i].Id == id && p.m_nodes[i].State == state {
			return &p.m_nodes[i]
		}
		i = p.m_next[i]
	}

	if p.m_nodeCount >= p.m_maxNodes {
		return nil
	}

	i = DtNodeIndex(p.m_nodeCount)
	p.m_nodeCount++

	// Init node
	node := &p.m_nodes[i]
	*node = DtNode{
		Id:      id,
		State:   state,
		poolIdx: uint32(i),
		heapIdx: -1,
	}

	p.m_next[i] = p.m_first[bucket]
	p.m_first[bucket] = i
	return node
}

func (p *DtNodePool) FindNode(id DtPolyRef, state uint8) *DtNode {
	bucket := hashRef(id) & uint32(p.m_hashSize-1)
	i := p.m_first[bucket]
	for i != DT_NULL_IDX {
		if p.m_nodes[i].Id == id && p.m_nodes[i].State == state {
			return &p.m_nodes[i]
		}
		i = p.m_next[i]
	}
	return nil
}

// FindNodes returns up to maxNodes nodes for id across all states.
func (p *DtNodePool) FindNodes(id DtPolyRef, maxNodes int) []*DtNode {
	var nodes []*DtNode
	bucket := hashRef(id) & uint32(p.m_hashSize-1)
	i := p.m_first[bucket]
	for i != DT_NULL_IDX {
		if p.m_nodes[i].Id == id {
			if len(nodes) >= maxNodes {
				return nodes
			}
			nodes = append(nodes, &p.m_nodes[i])
		}
		i = p.m_next[i]
	}
	return nodes
}

// GetNodeIdx returns the 1-based index of node, 0 for nil.
func (p *DtNodePool) GetNodeIdx(node *DtNode) uint32 {
	if node == nil {
		return 0
	}
	return node.poolIdx + 1
}

func (p *DtNodePool) GetNodeAtIdx(idx uint32) *DtNode {
	if idx == 0 {
		return nil
	}
	return &p.m_nodes[idx-1]
}

func (p *DtNodePool) GetNodeCount() int { return p.m_nodeCount }
func (p *DtNodePool) GetMaxNodes() int  { return p.m_maxNodes }

type nodeHeap []*DtNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].Total != h[j].Total {
		return h[i].Total < h[j].Total
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *nodeHeap) Push(x any) {
	n := x.(*DtNode)
	n.heapIdx = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.heapIdx = -1
	*h = old[:n-1]
	return node
}

// DtNodeQueue is the open list of the A* searches: a min-heap on Total,
// equal totals come out in the order they were pushed.
type DtNodeQueue struct {
	heap nodeHeap
	seq  uint64
}

func NewDtNodeQueue(capacity int) *DtNodeQueue {
	return &DtNodeQueue{heap: make(nodeHeap, 0, capacity)}
}

func (q *DtNodeQueue) Clear() {
	for i := range q.heap {
		q.heap[i].heapIdx = -1
		q.heap[i] = nil
	}
	q.heap = q.heap[:0]
	q.seq = 0
}

func (q *DtNodeQueue) Top() *DtNode { return q.heap[0] }

func (q *DtNodeQueue) Pop() *DtNode {
	return heap.Pop(&q.heap).(*DtNode)
}

func (q *DtNodeQueue) Push(node *DtNode) {
	q.seq++
	node.seq = q.seq
	heap.Push(&q.heap, node)
}

// Modify restores heap order after node.Total decreased.
func (q *DtNodeQueue) Modify(node *DtNode) {
	if node.heapIdx < 0 || node.heapIdx >= len(q.heap) || q.heap[node.heapIdx] != node {
		q.Push(node)
		return
	}
	heap.Fix(&q.heap, node.heapIdx)
}

func (q *DtNodeQueue) Empty() bool { return len(q.heap) == 0 }
