package router

// pqNode is one entry in the priority queue: Rank is the A* priority
// (cost-so-far + heuristic), TieBreak is compared when two nodes share
// a Rank (spec.md: "ties broken by ascending node id").
type pqNode[T comparable] struct {
	Rank     float64
	TieBreak int64
	Item     T
}

// minHeap is a generic binary min-heap, grounded on
// pkg/datastructure/pq_rtree.go's MinHeap (heapifyUp/heapifyDown over a
// slice), generalized from its Rtree-specific node type to any
// comparable item and extended with DecreaseKey, which a_star2.go calls
// but whose generic heap implementation was not present in the
// retrieved pack.
type minHeap[T comparable] struct {
	nodes []pqNode[T]
	index map[T]int
}

func newMinHeap[T comparable]() *minHeap[T] {
	return &minHeap[T]{index: make(map[T]int)}
}

func (h *minHeap[T]) less(i, j int) bool {
	a, b := h.nodes[i], h.nodes[j]
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.TieBreak < b.TieBreak
}

func (h *minHeap[T]) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.index[h.nodes[i].Item] = i
	h.index[h.nodes[j].Item] = j
}

func (h *minHeap[T]) Size() int { return len(h.nodes) }

func (h *minHeap[T]) Insert(n pqNode[T]) {
	h.nodes = append(h.nodes, n)
	i := len(h.nodes) - 1
	h.index[n.Item] = i
	h.heapifyUp(i)
}

func (h *minHeap[T]) heapifyUp(i int) {
	for i != 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *minHeap[T]) heapifyDown(i int) {
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < len(h.nodes) && h.less(left, smallest) {
			smallest = left
		}
		if right < len(h.nodes) && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *minHeap[T]) ExtractMin() (pqNode[T], bool) {
	if len(h.nodes) == 0 {
		return pqNode[T]{}, false
	}
	root := h.nodes[0]
	last := len(h.nodes) - 1
	h.swap(0, last)
	h.nodes = h.nodes[:last]
	delete(h.index, root.Item)
	if len(h.nodes) > 0 {
		h.index[h.nodes[0].Item] = 0
		h.heapifyDown(0)
	}
	return root, true
}

// DecreaseKey lowers item's rank if it is already queued, or inserts it
// otherwise.
func (h *minHeap[T]) DecreaseKey(n pqNode[T]) {
	i, ok := h.index[n.Item]
	if !ok {
		h.Insert(n)
		return
	}
	if n.Rank >= h.nodes[i].Rank {
		return
	}
	h.nodes[i] = n
	h.heapifyUp(i)
}
