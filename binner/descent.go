package binner

import (
	"math"

	"github.com/gonum/floats"

	"npgraph/bdgraph"
)

type endTerm struct {
	w, cov float64
	idx    []int
	times  []float64
}

func loopSameEnd(e *bdgraph.Edge) bool {
	return e.Source == e.Target && e.SourceDir == e.TargetDir
}

// gradientDescent estimates edge coverage minimising
// sum_n w_n [(S_out - c_n)^2 + (S_in - c_n)^2] where S is the coverage sum
// of the edges at one node end and w_n the node length over the longest.
func (bn *Binner) gradientDescent() map[bdgraph.EdgeKey]float64 {
	edges := bn.g.Edges()
	cov := make(map[bdgraph.EdgeKey]float64, len(edges))
	if len(edges) == 0 {
		return cov
	}
	index := make(map[bdgraph.EdgeKey]int, len(edges))
	for i, e := range edges {
		index[e.Key] = i
	}
	nodes := bn.g.Nodes()
	maxLen := 1
	for _, n := range nodes {
		if n.Len() > maxLen {
			maxLen = n.Len()
		}
	}
	covOf := make(map[bdgraph.NodeID]float64, len(nodes))
	var terms []endTerm
	for _, n := range nodes {
		covOf[n.ID] = n.Cov
		w := float64(n.Len()) / float64(maxLen)
		for _, d := range [2]bool{bdgraph.IN, bdgraph.OUT} {
			es := bn.g.EdgesAt(n.ID, d)
			if len(es) == 0 {
				continue
			}
			t := endTerm{w: w, cov: n.Cov}
			for _, e := range es {
				times := 1.0
				if loopSameEnd(e) {
					times = 2
				}
				t.idx = append(t.idx, index[e.Key])
				t.times = append(t.times, times)
			}
			terms = append(terms, t)
		}
	}

	x := make([]float64, len(edges))
	for i, e := range edges {
		x[i] = math.Min(covOf[e.Source], covOf[e.Target])
	}
	// diagonal preconditioner
	h := make([]float64, len(edges))
	for _, t := range terms {
		deg := floats.Sum(t.times)
		for k, i := range t.idx {
			h[i] += 2 * t.w * t.times[k] * deg
		}
	}
	grad := make([]float64, len(edges))
	delta := make([]float64, len(edges))
	iter := 0
	for ; iter < bn.cfg.GDMaxIter; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		for _, t := range terms {
			r := -t.cov
			for k, i := range t.idx {
				r += t.times[k] * x[i]
			}
			for k, i := range t.idx {
				grad[i] += 2 * t.w * r * t.times[k]
			}
		}
		for i := range delta {
			delta[i] = 0
			if h[i] > 0 {
				delta[i] = -bn.cfg.GDStep * grad[i] / h[i]
			}
			if x[i]+delta[i] < 0 {
				delta[i] = -x[i]
			}
		}
		floats.Add(x, delta)
		if floats.Norm(delta, math.Inf(1)) < bn.cfg.GDTolerance {
			break
		}
	}
	log.Debugf("[gradientDescent] %d edges, %d iterations", len(edges), iter)
	for i, e := range edges {
		cov[e.Key] = x[i]
	}
	return cov
}
