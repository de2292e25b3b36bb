package bdgraph

import "container/heap"

type treeItem struct {
	end   NodeEnd
	dist  int
	index int
}

// treePQ is a min-heap on distance.
type treePQ []*treeItem

func (pq treePQ) Len() int { return len(pq) }
func (pq treePQ) Less(i, j int) bool {
	if pq[i].dist == pq[j].dist {
		if pq[i].end.Node == pq[j].end.Node {
			return !pq[i].end.Dir && pq[j].end.Dir
		}
		return pq[i].end.Node < pq[j].end.Node
	}
	return pq[i].dist < pq[j].dist
}
func (pq treePQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *treePQ) Push(x interface{}) {
	item := x.(*treeItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *treePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// ShortestTree runs Dijkstra from the end dir of root and returns, for every
// (node, entering flag) reached within limit, the distance from the root tip
// to the entering tip. Nodes for which stop returns true are recorded but
// not expanded, and neither is the root when it is reached again.
func (g *Graph) ShortestTree(root NodeID, dir bool, limit int, stop func(NodeID) bool) map[NodeEnd]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dist := make(map[NodeEnd]int)
	if g.liveNode(root) == nil {
		return dist
	}
	pq := &treePQ{}
	relax := func(from NodeEnd, base int) {
		for _, e := range g.edgesAt(from.Node, from.Dir) {
			to, ok := e.Other(from)
			if !ok {
				continue
			}
			nd := base + e.Length
			if nd > limit {
				continue
			}
			if old, ok := dist[to]; ok && old <= nd {
				continue
			}
			dist[to] = nd
			heap.Push(pq, &treeItem{end: to, dist: nd})
		}
	}
	relax(NodeEnd{root, dir}, 0)
	for pq.Len() > 0 {
		it := heap.Pop(pq).(*treeItem)
		if it.dist > dist[it.end] {
			continue
		}
		m := it.end.Node
		if m == root || (stop != nil && stop(m)) {
			continue
		}
		relax(NodeEnd{m, !it.end.Dir}, it.dist+g.nodes[m].Len())
	}
	return dist
}
