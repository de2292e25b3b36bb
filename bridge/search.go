package bridge

import (
	"math"
	"sort"

	"npgraph/bdgraph"
	"npgraph/binner"
	"npgraph/config"
	"npgraph/utils"
)

// Searcher enumerates walks between anchors.
type Searcher struct {
	g   *bdgraph.Graph
	bn  *binner.Binner
	cfg config.Config
}

func NewSearcher(g *bdgraph.Graph, bn *binner.Binner, cfg config.Config) *Searcher {
	return &Searcher{g: g, bn: bn, cfg: cfg}
}

// Query asks for walks leaving Src through SrcDir and entering Dst through
// DstEnter whose distance is Target within tolerance.
type Query struct {
	Src      bdgraph.NodeID
	SrcDir   bool
	Dst      bdgraph.NodeID
	DstEnter bool
	Target   int
	BinCov   float64

	// Tree is the shortest tree from Dst leaving through DstEnter; built
	// when nil.
	Tree map[bdgraph.NodeEnd]int
}

func (s *Searcher) tree(root bdgraph.NodeID, dir bool, budget int) map[bdgraph.NodeEnd]int {
	return s.g.ShortestTree(root, dir, budget+s.cfg.Tolerance(budget), s.bn.IsUnique)
}

// extendScore is the log likelihood of using node once more, given it was
// used k times already in the walk.
func (s *Searcher) extendScore(n *bdgraph.Node, k int, binCov float64) float64 {
	if binCov <= 0 {
		return 0
	}
	w := math.Min(1, float64(n.Len())/float64(utils.MaxInt(1, s.cfg.MinSignificantLength)))
	res := n.Cov - binCov*float64(k)
	switch {
	case res >= binCov*(1-s.cfg.RTol):
		return 0
	case res <= 0:
		return -10 * w
	}
	sigma := math.Log(1 + s.cfg.RTol)
	d := math.Log(res / binCov)
	return -w * d * d / (2 * sigma * sigma)
}

type frame struct {
	p   *bdgraph.Path
	off int // distance from the source tip to the entering tip of the last node
}

// Search walks depth first from the source, never through another unique
// contig, and returns the walks arriving at the destination ordered by
// distance error then score. Equal walks keep discovery order.
func (s *Searcher) Search(q Query) []*bdgraph.Path {
	tol := s.cfg.Tolerance(q.Target)
	tree := q.Tree
	if tree == nil {
		tree = s.tree(q.Dst, q.DstEnter, q.Target)
	}
	src := s.g.Node(q.Src)
	if src == nil {
		return nil
	}
	var cands []*bdgraph.Path
	stack := []frame{{p: bdgraph.NewPath(q.Src, q.SrcDir, src.Len())}}
	steps := 0
	for len(stack) > 0 && steps < s.cfg.SLimit && len(cands) < s.cfg.MaxDFSPaths {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		steps++
		last, leave := f.p.Last(), f.p.Leaving()
		base := f.off
		if len(f.p.Steps) > 0 {
			base += s.g.NodeLen(last)
		}
		from := bdgraph.NodeEnd{Node: last, Dir: leave}
		edges := s.g.EdgesAt(last, leave)
		var next []frame
		for _, e := range edges {
			to, ok := e.Other(from)
			if !ok {
				continue
			}
			off := base + e.Length
			if to.Node == q.Dst {
				if to.Dir != q.DstEnter || utils.AbsInt(off-q.Target) > tol || len(cands) >= s.cfg.MaxDFSPaths {
					continue
				}
				np := f.p.Clone()
				if err := np.Extend(e, s.g.NodeLen(to.Node)); err != nil {
					continue
				}
				np.Deviation = off - q.Target
				cands = append(cands, np)
				continue
			}
			if to.Node == q.Src || s.bn.IsUnique(to.Node) {
				continue
			}
			n, live := s.g.NodeCopy(to.Node)
			rem, ok := tree[bdgraph.NodeEnd{Node: to.Node, Dir: !to.Dir}]
			if !live || !ok || off+n.Len()+rem > q.Target+tol {
				continue
			}
			np := f.p.Clone()
			k := np.Count(to.Node)
			if err := np.Extend(e, n.Len()); err != nil {
				continue
			}
			np.Score += s.extendScore(&n, k, q.BinCov)
			next = append(next, frame{p: np, off: off})
		}
		// first edge on top of the stack
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	if len(cands) == 0 {
		if p := s.pseudo(q); p != nil {
			return []*bdgraph.Path{p}
		}
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		di, dj := utils.AbsInt(cands[i].Deviation), utils.AbsInt(cands[j].Deviation)
		if di != dj {
			return di < dj
		}
		return cands[i].Score > cands[j].Score
	})
	return cands
}

// pseudo joins two unique dead ends over the gap the reads measured.
func (s *Searcher) pseudo(q Query) *bdgraph.Path {
	if !s.cfg.AllowGapFill || !s.bn.IsUnique(q.Src) || !s.bn.IsUnique(q.Dst) {
		return nil
	}
	if len(s.g.EdgesAt(q.Src, q.SrcDir)) > 0 || len(s.g.EdgesAt(q.Dst, q.DstEnter)) > 0 {
		return nil
	}
	p, err := s.g.PseudoPath(q.Src, q.SrcDir, q.Dst, q.DstEnter, q.Target)
	if err != nil {
		log.Warningf("[pseudo] %v", err)
		return nil
	}
	return p
}
