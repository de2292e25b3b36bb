package bridge

import (
	"fmt"

	"npgraph/bdgraph"
	"npgraph/config"
	"npgraph/utils"
)

// Segment is the part of a bridge between two consecutive waypoints with
// the walks that may connect them.
type Segment struct {
	Start, End *NodeVector
	StartDir   bool // leaving flag of Start
	EndDir     bool // entering flag of End

	// positions of the Start far tip and the End near tip along the bridge
	from, to int

	Paths []*bdgraph.Path
}

// Locate reports whether a contig whose near tip sits at pos falls inside
// the segment.
func (s *Segment) Locate(pos, tol int) bool {
	return pos >= s.from-tol && pos <= s.to+tol
}

// Vote gives score to every candidate holding node, entered with flag
// enter, within tol of pos, and takes it from the others. Nothing changes
// when no candidate explains the placement.
func (s *Segment) Vote(node bdgraph.NodeID, enter bool, pos, score int, cfg config.Config) {
	expected := pos - s.from
	tol := cfg.Tolerance(expected)
	hits := make([]bool, len(s.Paths))
	hit := false
	for i, p := range s.Paths {
		prim := p.Primitive()
		if len(prim.Steps) < 2 {
			continue
		}
		offs := prim.Offsets()
		for k, st := range prim.Steps[:len(prim.Steps)-1] {
			if st.Node == node && st.Dir == enter && utils.AbsInt(offs[k]-expected) <= tol {
				hits[i], hit = true, true
				break
			}
		}
	}
	if !hit {
		return
	}
	for i, p := range s.Paths {
		if hits[i] {
			p.Votes += score
		} else {
			p.Votes -= score
		}
	}
}

// Best is the candidate with the most votes; the first one wins ties.
func (s *Segment) Best() *bdgraph.Path {
	var best *bdgraph.Path
	for _, p := range s.Paths {
		if best == nil || p.Votes > best.Votes {
			best = p
		}
	}
	return best
}

// Prune drops candidates trailing the best by minSupport votes or more.
func (s *Segment) Prune(minSupport int) int {
	best := s.Best()
	if best == nil {
		return 0
	}
	kept := s.Paths[:0]
	for _, p := range s.Paths {
		if p == best || p.Votes > best.Votes-minSupport {
			kept = append(kept, p)
		}
	}
	n := len(s.Paths) - len(kept)
	s.Paths = kept
	return n
}

func (s *Segment) String() string {
	return fmt.Sprintf("%v->%v [%d,%d] candidates:%d", s.Start, s.End, s.from, s.to, len(s.Paths))
}

// vote recounts the votes of every candidate from the waypoints and prunes
// the losers. A segment ending at a waypoint other than the end anchor
// credits all its candidates with that waypoint's score, so splitting a
// bridge at a waypoint keeps the support the waypoint gave the winning walk.
func (b *Bridge) vote(cfg config.Config) {
	for _, s := range b.Segments {
		credit := 0
		if s.End != b.End {
			credit = s.End.Score
		}
		for _, p := range s.Paths {
			p.Votes = credit
		}
	}
	boundary := make(map[*NodeVector]bool)
	for _, s := range b.Segments {
		boundary[s.Start], boundary[s.End] = true, true
	}
	for _, w := range b.sortedSteps() {
		if boundary[w] {
			continue
		}
		pos := b.along(w)
		for _, s := range b.Segments {
			if s.Locate(pos, cfg.Tolerance(pos-s.from)) {
				s.Vote(w.Node, w.Vec.EnterFlag(b.DirA), pos, w.Score, cfg)
				break
			}
		}
	}
	for _, s := range b.Segments {
		if n := s.Prune(cfg.MinSupport); n > 0 {
			log.Debugf("[vote] %v: pruned %d candidates of %v", b.Key(), n, s)
		}
	}
}
