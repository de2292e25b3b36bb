package bdgraph

import "sort"

// Reduction is the record of one committed reduction.
type Reduction struct {
	Edge         *Edge
	Removed      []EdgeKey
	RemovedNodes []NodeID

	// Interior holds how many times each interior node was used by the walk.
	Interior map[NodeID]int
}

// Reduce replaces the walk p between its two anchors by a single composite
// edge. Edges of the walk are retired when they are composite, touch an
// anchor, or touch an interior node whose coverage is used up by this walk
// (residual below half of binCov); such nodes are removed. Interior nodes
// that survive have binCov subtracted per use.
//
// Reduce returns false and leaves the graph untouched when fewer than two
// edges would be replaced, which makes reducing the same walk twice a no-op.
func (g *Graph) Reduce(p *Path, binCov float64) (Reduction, bool) {
	var red Reduction
	if p == nil || len(p.Steps) == 0 {
		return red, false
	}
	prim := p.Primitive()
	first, last := prim.Root, prim.Last()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.liveNode(first) == nil || g.liveNode(last) == nil {
		return red, false
	}

	red.Interior = make(map[NodeID]int)
	for _, s := range prim.Steps[:len(prim.Steps)-1] {
		red.Interior[s.Node]++
	}
	exhausted := make(map[NodeID]bool)
	for id, c := range red.Interior {
		if id == first || id == last {
			continue
		}
		n := g.liveNode(id)
		if n == nil {
			log.Debugf("[Reduce] interior node %d of %s already removed", id, p)
			return red, false
		}
		if n.Cov-binCov*float64(c) < 0.5*binCov {
			exhausted[id] = true
		}
	}

	replace := make(map[EdgeKey]bool)
	for _, s := range p.Steps {
		if s.Sub != nil {
			if _, ok := g.edges[s.Edge]; ok {
				replace[s.Edge] = true
			}
		}
	}
	prev := first
	for i, s := range prim.Steps {
		if _, ok := g.edges[s.Edge]; ok {
			if i == 0 || i == len(prim.Steps)-1 || exhausted[prev] || exhausted[s.Node] {
				replace[s.Edge] = true
			}
		}
		prev = s.Node
	}
	if len(replace) < 2 {
		return red, false
	}

	// the composite edge attaches to the entering end of the last anchor
	e, err := g.newEdge(first, prim.RootDir, last, prim.LastEnter(), prim.Distance(), prim)
	if err != nil {
		log.Warningf("[Reduce] %v", err)
		return red, false
	}
	if _, ok := g.edges[e.Key]; ok {
		return red, false
	}

	keys := make([]EdgeKey, 0, len(replace))
	for k := range replace {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if g.removeEdge(k) != nil {
			red.Removed = append(red.Removed, k)
		}
	}
	for id := range exhausted {
		red.RemovedNodes = append(red.RemovedNodes, id)
	}
	sort.Slice(red.RemovedNodes, func(i, j int) bool { return red.RemovedNodes[i] < red.RemovedNodes[j] })
	for _, id := range red.RemovedNodes {
		red.Removed = append(red.Removed, g.removeNode(id)...)
	}
	for id, c := range red.Interior {
		if exhausted[id] || id == first || id == last {
			continue
		}
		n := g.nodes[id]
		n.Cov -= binCov * float64(c)
		if n.Cov < 0 {
			n.Cov = 0
		}
	}
	g.insertEdge(e)
	red.Edge = e
	log.Debugf("[Reduce] %s replaced %d edges, removed %d nodes", e.Key, len(red.Removed), len(red.RemovedNodes))
	return red, true
}
