package binner

import (
	"sort"

	"npgraph/bdgraph"
	"npgraph/utils"
)

// propagate resolves edges from the node maps known so far.
func (bn *Binner) propagate() int {
	ids := make([]bdgraph.NodeID, 0, len(bn.nodeBins))
	for id := range bn.nodeBins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	queue := make([]bdgraph.NodeEnd, 0, 2*len(ids))
	for _, id := range ids {
		queue = append(queue, bdgraph.NodeEnd{Node: id, Dir: bdgraph.IN}, bdgraph.NodeEnd{Node: id, Dir: bdgraph.OUT})
	}
	return bn.drain(queue)
}

// drain works a queue of node ends. An end whose node map is known and
// that has a single unresolved edge gives that edge the remainder; an end
// whose edges are all resolved gives an unknown node its map.
func (bn *Binner) drain(queue []bdgraph.NodeEnd) (count int) {
	for len(queue) > 0 {
		ne := queue[0]
		queue = queue[1:]
		edges := bn.g.EdgesAt(ne.Node, ne.Dir)
		if len(edges) == 0 {
			continue
		}
		sum := make(BinMap)
		var unknown []*bdgraph.Edge
		for _, e := range edges {
			times := 1
			if loopSameEnd(e) {
				times = 2
			}
			if m, ok := bn.edgeBins[e.Key]; ok {
				sum.add(m, times)
			} else {
				unknown = append(unknown, e)
			}
		}
		nm, known := bn.nodeBins[ne.Node]
		switch {
		case !known && len(unknown) == 0:
			bn.nodeBins[ne.Node] = sum
			queue = append(queue, bdgraph.NodeEnd{Node: ne.Node, Dir: !ne.Dir})
		case known && len(unknown) == 1 && !loopSameEnd(unknown[0]):
			e := unknown[0]
			m := make(BinMap)
			for b, c := range nm {
				if r := c - sum[b]; r > 0 {
					m[b] = r
				}
			}
			bn.edgeBins[e.Key] = m
			count++
			if other, ok := e.Other(ne); ok {
				queue = append(queue, other)
			}
		}
	}
	return count
}

// guess assigns the most confident unresolved edge from its coverage, then
// propagates, until no edge is within tolerance of a bin.
func (bn *Binner) guess() (count int) {
	edges := bn.g.Edges()
	for {
		var best *bdgraph.Edge
		bestBin, bestMult, bestErr := -1, 0, bn.cfg.RTol
		for _, e := range edges {
			if _, ok := bn.edgeBins[e.Key]; ok {
				continue
			}
			bin, mult, err := bn.nearest(bn.edgeCov[e.Key])
			if bin < 0 || err > bestErr || (err == bestErr && best != nil) {
				continue
			}
			best, bestBin, bestMult, bestErr = e, bin, mult, err
		}
		if best == nil {
			return count
		}
		bn.edgeBins[best.Key] = BinMap{bestBin: bestMult}
		count++
		log.Debugf("[guess] %s cov:%.2f -> bin %d x%d", best.Key, bn.edgeCov[best.Key], bestBin, bestMult)
		count += bn.drain([]bdgraph.NodeEnd{{Node: best.Source, Dir: best.SourceDir}, {Node: best.Target, Dir: best.TargetDir}})
	}
}

// fillNodes gives every non member node a map from the flow through it,
// raised to the copy number its own coverage suggests when a single bin
// flows through. Long nodes without flow take the nearest bin.
func (bn *Binner) fillNodes() {
	member := make(map[bdgraph.NodeID]bool)
	for _, b := range bn.bins {
		for id := range b.Members {
			member[id] = true
		}
	}
	for _, n := range bn.g.Nodes() {
		if member[n.ID] {
			continue
		}
		flow := make(BinMap)
		for _, d := range [2]bool{bdgraph.IN, bdgraph.OUT} {
			side := make(BinMap)
			for _, e := range bn.g.EdgesAt(n.ID, d) {
				times := 1
				if loopSameEnd(e) {
					times = 2
				}
				if m, ok := bn.edgeBins[e.Key]; ok {
					side.add(m, times)
				}
			}
			for b, c := range side {
				flow[b] = utils.MaxInt(flow[b], c)
			}
		}
		for b, c := range flow {
			if c <= 0 {
				delete(flow, b)
			}
		}
		switch len(flow) {
		case 0:
			if n.Len() < bn.cfg.MinSignificantLength {
				delete(bn.nodeBins, n.ID)
				continue
			}
			bin, mult, err := bn.nearest(n.Cov)
			if bin < 0 || err > bn.cfg.RTol {
				delete(bn.nodeBins, n.ID)
				continue
			}
			flow[bin] = mult
		case 1:
			for b, c := range flow {
				flow[b] = utils.MaxInt(c, utils.Round(n.Cov/bn.bins[b].Coverage()))
			}
		}
		bn.nodeBins[n.ID] = flow
	}
}
