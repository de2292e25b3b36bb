// Package bridge joins unique contigs along the evidence of long reads. A
// Bridge starts at one end of a unique contig, collects the contigs reads
// place after it and, once a second unique contig is known, searches the
// graph for the walk between the two.
package bridge

import (
	"errors"
	"fmt"
	"sort"

	logging "github.com/op/go-logging"

	"npgraph/bdgraph"
	"npgraph/config"
	"npgraph/scaffold"
	"npgraph/utils"
)

var log = logging.MustGetLogger("bridge")

var (
	ErrUnreachable  = errors.New("end anchor unreachable from start anchor")
	ErrInconsistent = errors.New("evidence inconsistent with bridge")
)

// Completion levels of a bridge, derived from its state.
type Completion int

const (
	NoAnchor Completion = iota
	OneAnchor
	TwoAnchors
	Connected
	Resolved
)

func (c Completion) String() string {
	switch c {
	case NoAnchor:
		return "no-anchor"
	case OneAnchor:
		return "one-anchor"
	case TwoAnchors:
		return "two-anchors"
	case Connected:
		return "connected"
	case Resolved:
		return "resolved"
	}
	return fmt.Sprintf("Completion(%d)", int(c))
}

// NodeVector is a contig placed relative to the start anchor of a bridge;
// Score counts the reads behind the placement.
type NodeVector struct {
	Node  bdgraph.NodeID
	Vec   scaffold.Vector
	Len   int
	Score int
}

// absorb averages two consistent placements weighted by score.
func (nv *NodeVector) absorb(o NodeVector) {
	total := nv.Score + o.Score
	if total > 0 {
		m := float64(nv.Vec.Magnitude*nv.Score+o.Vec.Magnitude*o.Score) / float64(total)
		nv.Vec.Magnitude = utils.Round(m)
	}
	nv.Score = total
}

func (nv *NodeVector) String() string {
	return fmt.Sprintf("%d%v(%d)", nv.Node, nv.Vec, nv.Score)
}

type Bridge struct {
	A    bdgraph.NodeID
	DirA bool
	LenA int
	BinA int

	// End is the second anchor, nil while only A is known.
	End  *NodeVector
	BinB int

	Steps    []*NodeVector
	Segments []*Segment

	reads    int
	gapReads [][]byte
	fill     []byte
	rejected map[bdgraph.NodeID]bool
	lastSig  string
	tried    bool
	reduced  bool

	// version counts changes of the evidence, see connectJob.
	version int
}

func NewBridge(a bdgraph.NodeID, dirA bool, lenA, binA int) *Bridge {
	return &Bridge{A: a, DirA: dirA, LenA: lenA, BinA: binA, BinB: -1, rejected: make(map[bdgraph.NodeID]bool)}
}

// Level derives the completion from the anchors and the candidate paths.
func (b *Bridge) Level() Completion {
	switch {
	case b.A == bdgraph.NilNode:
		return NoAnchor
	case b.reduced:
		return Resolved
	case b.End == nil:
		return OneAnchor
	case len(b.Segments) == 0:
		return TwoAnchors
	}
	single := true
	for _, s := range b.Segments {
		switch len(s.Paths) {
		case 0:
			return TwoAnchors
		case 1:
		default:
			single = false
		}
	}
	if single {
		return Resolved
	}
	return Connected
}

func (b *Bridge) Key() bdgraph.NodeEnd {
	return bdgraph.NodeEnd{Node: b.A, Dir: b.DirA}
}

// EndKey is the end of the second anchor facing A.
func (b *Bridge) EndKey() (bdgraph.NodeEnd, bool) {
	if b.End == nil {
		return bdgraph.NodeEnd{}, false
	}
	return bdgraph.NodeEnd{Node: b.End.Node, Dir: b.End.Vec.EnterFlag(b.DirA)}, true
}

func (b *Bridge) Reads() int {
	return b.reads
}

func (b *Bridge) GapReads() [][]byte {
	return b.gapReads
}

func (b *Bridge) Reduced() bool {
	return b.reduced
}

// along is the distance from the leaving tip of A to the near tip of a
// placed contig; A itself sits at -LenA.
func (b *Bridge) along(nv *NodeVector) int {
	if nv.Node == b.A && nv.Vec == scaffold.Identity {
		return -b.LenA
	}
	return nv.Vec.Along(b.DirA, b.LenA, nv.Len)
}

// Gap is the distance between the two anchors.
func (b *Bridge) Gap() int {
	if b.End == nil {
		return 0
	}
	return b.along(b.End)
}

func (b *Bridge) anchorVector() *NodeVector {
	return &NodeVector{Node: b.A, Vec: scaffold.Identity, Len: b.LenA}
}

// frame returns the vector mapping placements relative to the first
// alignment of r into the bridge frame.
func (b *Bridge) frame(r *scaffold.AlignedRead) (scaffold.Vector, bool) {
	first := r.First()
	if first.Node == b.A && first.Strand == b.DirA {
		return scaffold.Identity, true
	}
	if ek, ok := b.EndKey(); ok && first.Node == ek.Node && first.Strand == ek.Dir {
		return b.End.Vec, true
	}
	return scaffold.Vector{}, false
}

// Accepts reports whether r starts at either anchor, leaving towards the
// other.
func (b *Bridge) Accepts(r *scaffold.AlignedRead) bool {
	_, ok := b.frame(r)
	return ok
}

func (b *Bridge) addStep(nv NodeVector, cfg config.Config) {
	for _, s := range b.Steps {
		if s.Node == nv.Node && s.Vec.Consistent(nv.Vec, cfg.ATol, cfg.RTol) {
			s.absorb(nv)
			return
		}
	}
	cp := nv
	b.Steps = append(b.Steps, &cp)
}

// checkEnd validates a second anchor placement against the bridge.
func (b *Bridge) checkEnd(end NodeVector, cfg config.Config) error {
	switch {
	case end.Node == b.A:
		if !end.Vec.Consistent(scaffold.Identity, cfg.ATol, cfg.RTol) {
			return fmt.Errorf("%d placed at %v from itself: %w", b.A, end.Vec, ErrInconsistent)
		}
	case b.rejected[end.Node]:
		return fmt.Errorf("%d already found unreachable from %v: %w", end.Node, b.Key(), ErrInconsistent)
	case b.End == nil:
	case end.Node != b.End.Node:
		return fmt.Errorf("end anchor %d conflicts with %d: %w", end.Node, b.End.Node, ErrInconsistent)
	case !end.Vec.Consistent(b.End.Vec, cfg.ATol, cfg.RTol):
		return fmt.Errorf("end anchor %d at %v, expected %v: %w", end.Node, end.Vec, b.End.Vec, ErrInconsistent)
	}
	return nil
}

func (b *Bridge) setEnd(end NodeVector, binB int) {
	if end.Node == b.A {
		return
	}
	if b.End == nil {
		cp := end
		b.End = &cp
		b.BinB = binB
		return
	}
	b.End.absorb(end)
}

// MergeRead adds the placements of a (sub-)read starting at one of the
// anchors. With toAnchor the last alignment of r is a unique contig and
// becomes, or must agree with, the end anchor. Nothing is changed when the
// read is inconsistent.
func (b *Bridge) MergeRead(r *scaffold.AlignedRead, toAnchor bool, binB int, cfg config.Config) error {
	base, ok := b.frame(r)
	if !ok {
		return fmt.Errorf("read %s does not start at an anchor of %v: %w", r.Name, b.Key(), ErrInconsistent)
	}
	n := len(r.Alignments)
	place := func(i int) NodeVector {
		a := r.Alignments[i]
		return NodeVector{Node: a.Node, Vec: scaffold.Compose(r.Vector(0, i), base), Len: a.NodeLen, Score: 1}
	}
	interior := n - 1
	var end NodeVector
	if toAnchor && n > 1 {
		end = place(n - 1)
		if err := b.checkEnd(end, cfg); err != nil {
			return err
		}
		interior = n - 2
	}
	if toAnchor && n > 1 {
		b.setEnd(end, binB)
		if gap := r.SubSeq(0, n-1); gap != nil {
			if base != scaffold.Identity {
				gap = bdgraph.ReverseComplement(gap)
			}
			b.gapReads = append(b.gapReads, gap)
		}
	}
	for i := 1; i <= interior; i++ {
		b.addStep(place(i), cfg)
	}
	b.reads++
	b.version++
	return nil
}

// Merge folds the evidence of o into b. o must start at one of the anchors
// of b, leaving towards the other.
func (b *Bridge) Merge(o *Bridge, cfg config.Config) error {
	var base scaffold.Vector
	switch ek, ok := b.EndKey(); {
	case o.A == b.A && o.DirA == b.DirA:
		base = scaffold.Identity
	case ok && o.A == ek.Node && o.DirA == ek.Dir:
		base = b.End.Vec
	case o.End != nil && o.End.Node == b.A:
		// o runs the other way
		return b.Merge(o.Reverse(), cfg)
	default:
		return fmt.Errorf("bridge %v unrelated to %v: %w", o.Key(), b.Key(), ErrInconsistent)
	}
	var end NodeVector
	if o.End != nil {
		end = *o.End
		end.Vec = scaffold.Compose(o.End.Vec, base)
		if err := b.checkEnd(end, cfg); err != nil {
			return err
		}
		b.setEnd(end, o.BinB)
	}
	for _, s := range o.Steps {
		nv := *s
		nv.Vec = scaffold.Compose(s.Vec, base)
		b.addStep(nv, cfg)
	}
	for _, gap := range o.gapReads {
		if base != scaffold.Identity {
			gap = bdgraph.ReverseComplement(gap)
		}
		b.gapReads = append(b.gapReads, gap)
	}
	for id := range o.rejected {
		b.rejected[id] = true
	}
	b.reads += o.reads
	b.tried = false
	b.version++
	return nil
}

// Reverse returns the bridge seen from its end anchor. Candidate paths are
// dropped and searched again on the next connect.
func (b *Bridge) Reverse() *Bridge {
	if b.End == nil {
		return b
	}
	ek, _ := b.EndKey()
	back := b.End.Vec.Reverse()
	rb := NewBridge(ek.Node, ek.Dir, b.End.Len, b.BinB)
	rb.End = &NodeVector{Node: b.A, Vec: back, Len: b.LenA, Score: b.End.Score}
	rb.BinB = b.BinA
	for _, s := range b.Steps {
		nv := *s
		nv.Vec = scaffold.Compose(s.Vec, back)
		rb.Steps = append(rb.Steps, &nv)
	}
	for _, gap := range b.gapReads {
		rb.gapReads = append(rb.gapReads, bdgraph.ReverseComplement(gap))
	}
	for id := range b.rejected {
		rb.rejected[id] = true
	}
	rb.reads = b.reads
	rb.reduced = b.reduced
	return rb
}

// sortedSteps orders waypoints along the bridge.
func (b *Bridge) sortedSteps() []*NodeVector {
	arr := append([]*NodeVector(nil), b.Steps...)
	sort.SliceStable(arr, func(i, j int) bool { return b.along(arr[i]) < b.along(arr[j]) })
	return arr
}

// BestPath joins the winning candidate of every segment, the most votes
// and the first discovered on ties.
func (b *Bridge) BestPath() *bdgraph.Path {
	if len(b.Segments) == 0 {
		return nil
	}
	var p *bdgraph.Path
	for _, s := range b.Segments {
		best := s.Best()
		if best == nil {
			return nil
		}
		if p == nil {
			p = best.Clone()
			continue
		}
		p.Steps = append(p.Steps, best.Steps...)
		p.Deviation += best.Deviation
		p.Score += best.Score
		p.Votes += best.Votes
	}
	p.AddBin(b.BinA, b.LenA)
	if b.End != nil && b.BinB >= 0 {
		p.AddBin(b.BinB, b.End.Len)
	}
	return p
}

func (b *Bridge) String() string {
	s := fmt.Sprintf("%v", b.Key())
	if ek, ok := b.EndKey(); ok {
		s += fmt.Sprintf("~%v gap:%d", ek, b.Gap())
	}
	return fmt.Sprintf("%s level:%v reads:%d steps:%d segments:%d", s, b.Level(), b.reads, len(b.Steps), len(b.Segments))
}
