package bridge

import (
	"context"
	"fmt"
	"strings"

	"npgraph/bdgraph"
	"npgraph/utils"
)

// strongSig identifies the set of waypoints supported by enough reads.
func (b *Bridge) strongSig(minSupport int) string {
	var sb strings.Builder
	for _, w := range b.sortedSteps() {
		if w.Score >= minSupport {
			fmt.Fprintf(&sb, "%d%v,", w.Node, w.Vec.EnterFlag(b.DirA))
		}
	}
	return sb.String()
}

func (b *Bridge) needsConnect(minSupport int) bool {
	if b.reduced || b.End == nil {
		return false
	}
	return !b.tried || b.strongSig(minSupport) != b.lastSig
}

// leaveFlag is the end a walk along the bridge leaves a placed contig by.
func (b *Bridge) leaveFlag(nv *NodeVector) bool {
	return !nv.Vec.EnterFlag(b.DirA)
}

func (b *Bridge) enterFlag(nv *NodeVector) bool {
	return nv.Vec.EnterFlag(b.DirA)
}

func (b *Bridge) binCov(s *Searcher) float64 {
	if pb := s.bn.Bin(b.BinA); pb != nil {
		return pb.Coverage()
	}
	return 0
}

// connectJob is one search for the walks of a bridge. It is planned and
// applied with the engine lock held and run without it, on copies of the
// waypoints; a bridge changed in between discards the result.
type connectJob struct {
	b        *Bridge
	version  int
	sig      string
	gap      int
	end      bdgraph.NodeEnd
	endNV    *NodeVector
	binCov   float64
	steps    []*NodeVector
	orig     map[*NodeVector]*NodeVector
	gapReads [][]byte

	unreachable bool
	segs        []*Segment
	fill        []byte
}

func (b *Bridge) plan(s *Searcher) *connectJob {
	if b.End == nil || b.reduced {
		return nil
	}
	ek, _ := b.EndKey()
	j := &connectJob{
		b:        b,
		version:  b.version,
		sig:      b.strongSig(s.cfg.MinSupport),
		gap:      b.Gap(),
		end:      ek,
		binCov:   b.binCov(s),
		orig:     make(map[*NodeVector]*NodeVector),
		gapReads: append([][]byte(nil), b.gapReads...),
	}
	endNV := *b.End
	j.endNV = &endNV
	j.orig[j.endNV] = b.End
	for _, w := range b.sortedSteps() {
		cp := *w
		j.steps = append(j.steps, &cp)
		j.orig[&cp] = w
	}
	return j
}

// run searches the walks from A to the end anchor, split at the waypoints
// that enough reads agree on. Without a walk, two unique dead ends may be
// joined by a pseudo edge filled with the consensus of the gap reads.
func (j *connectJob) run(ctx context.Context, s *Searcher, cons Consensus) {
	b, cfg := j.b, s.cfg
	treeB := s.g.ShortestTree(j.end.Node, j.end.Dir, j.gap+cfg.Tolerance(j.gap), s.bn.IsUnique)
	if _, ok := treeB[b.Key()]; !ok {
		q := Query{Src: b.A, SrcDir: b.DirA, Dst: j.end.Node, DstEnter: j.end.Dir, Target: j.gap, BinCov: j.binCov, Tree: treeB}
		p := s.pseudo(q)
		if p == nil {
			j.unreachable = true
			return
		}
		j.segs = []*Segment{b.newSegment(b.anchorVector(), j.endNV, []*bdgraph.Path{p})}
		j.fill = consensus(ctx, cons, b.Key(), j.gapReads)
		return
	}

	pts := []*NodeVector{b.anchorVector()}
	for _, w := range j.steps {
		if w.Score < cfg.MinSupport || w.Node == b.A || w.Node == j.end.Node {
			continue
		}
		d, ok := treeB[bdgraph.NodeEnd{Node: w.Node, Dir: b.leaveFlag(w)}]
		want := j.gap - b.along(w) - w.Len
		if !ok || utils.AbsInt(d-want) > cfg.Tolerance(want) {
			log.Debugf("[Connect] %v: waypoint %v off the graph", b.Key(), w)
			continue
		}
		pts = append(pts, w)
	}
	pts = append(pts, j.endNV)
	j.segs = b.link(s, pts, treeB, j.binCov)
}

// apply installs the result of the search. It reports false when the
// bridge changed since the job was planned, and ErrUnreachable when the end
// anchor cannot be reached at the measured distance: the anchor is then
// dropped and remembered. A failed search leaves earlier candidates in
// place.
func (j *connectJob) apply() (bool, error) {
	b := j.b
	if b.version != j.version || b.reduced {
		log.Debugf("[Connect] %v changed during the search", b.Key())
		return false, nil
	}
	b.tried, b.lastSig = true, j.sig
	if j.unreachable {
		log.Infof("[Connect] %v: end anchor unreachable, dropped", b)
		b.rejected[j.end.Node] = true
		b.End, b.BinB, b.Segments = nil, -1, nil
		b.gapReads, b.fill = nil, nil
		b.version++
		return true, ErrUnreachable
	}
	if j.segs == nil {
		log.Infof("[Connect] %v: no walk found", b)
		return true, nil
	}
	for _, sg := range j.segs {
		if w, ok := j.orig[sg.Start]; ok {
			sg.Start = w
		}
		if w, ok := j.orig[sg.End]; ok {
			sg.End = w
		}
	}
	b.Segments = j.segs
	b.fill = j.fill
	log.Debugf("[Connect] %v", b)
	return true, nil
}

// Connect searches the walks joining the two anchors and recounts the
// votes. See apply for the errors.
func (b *Bridge) Connect(ctx context.Context, s *Searcher, cons Consensus) error {
	j := b.plan(s)
	if j == nil {
		return nil
	}
	j.run(ctx, s, cons)
	if _, err := j.apply(); err != nil {
		return err
	}
	if len(b.Segments) > 0 {
		b.vote(s.cfg)
	}
	return nil
}

// consensus builds the fill of a pseudo edge from the read bases spanning
// it, nil when there is none.
func consensus(ctx context.Context, cons Consensus, key bdgraph.NodeEnd, seqs [][]byte) []byte {
	if cons == nil || len(seqs) == 0 {
		return nil
	}
	seq, err := cons.Consensus(ctx, seqs)
	if err != nil {
		log.Warningf("[consensus] %v: %v", key, err)
		return nil
	}
	return seq
}

// link joins pts from first to last, skipping waypoints that lead nowhere.
func (b *Bridge) link(s *Searcher, pts []*NodeVector, treeB map[bdgraph.NodeEnd]int, binCov float64) []*Segment {
	last := len(pts) - 1
	dead := make(map[int]bool)
	var walk func(i int) []*Segment
	walk = func(i int) []*Segment {
		for j := i + 1; j <= last; j++ {
			var tree map[bdgraph.NodeEnd]int
			if j == last {
				tree = treeB
			}
			seg := b.search(s, pts[i], pts[j], tree, binCov)
			if seg == nil {
				continue
			}
			if j == last {
				return []*Segment{seg}
			}
			if dead[j] {
				continue
			}
			if rest := walk(j); rest != nil {
				return append([]*Segment{seg}, rest...)
			}
			dead[j] = true
		}
		return nil
	}
	return walk(0)
}

func (b *Bridge) search(s *Searcher, p, q *NodeVector, tree map[bdgraph.NodeEnd]int, binCov float64) *Segment {
	target := b.along(q) - b.along(p) - p.Len
	paths := s.Search(Query{
		Src:      p.Node,
		SrcDir:   b.leaveFlag(p),
		Dst:      q.Node,
		DstEnter: b.enterFlag(q),
		Target:   target,
		BinCov:   binCov,
		Tree:     tree,
	})
	if len(paths) == 0 {
		return nil
	}
	return b.newSegment(p, q, paths)
}

func (b *Bridge) newSegment(p, q *NodeVector, paths []*bdgraph.Path) *Segment {
	return &Segment{
		Start:    p,
		End:      q,
		StartDir: b.leaveFlag(p),
		EndDir:   b.enterFlag(q),
		from:     b.along(p) + p.Len,
		to:       b.along(q),
		Paths:    paths,
	}
}
