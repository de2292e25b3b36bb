package bdgraph

import (
	"fmt"
	"strings"
)

// Step is one edge of a walk together with the node it enters. Dir is the
// entering flag: false means the node is entered at its 5' end and read
// forward, true means it is read reverse complemented.
type Step struct {
	Edge    EdgeKey
	Node    NodeID
	Dir     bool
	Length  int
	NodeLen int

	// Sub is the expansion of a composite edge oriented along the walk.
	Sub    *Path
	Pseudo bool
	Fill   []byte
}

// Path is a walk starting at Root and leaving it through RootDir. A Path is
// a value: it never aliases graph state and can be kept after the graph
// changes.
type Path struct {
	Root    NodeID
	RootDir bool
	RootLen int
	Steps   []Step

	Deviation int
	Score     float64
	Votes     int

	binLen map[int]int
}

func NewPath(root NodeID, rootDir bool, rootLen int) *Path {
	return &Path{Root: root, RootDir: rootDir, RootLen: rootLen}
}

func (p *Path) Len() int {
	return len(p.Steps)
}

// First is the root together with the end the walk leaves it through.
func (p *Path) First() NodeEnd {
	return NodeEnd{p.Root, p.RootDir}
}

// Last is the final node of the walk.
func (p *Path) Last() NodeID {
	if len(p.Steps) == 0 {
		return p.Root
	}
	return p.Steps[len(p.Steps)-1].Node
}

// LastEnter is the entering flag of the final node; for a bare root it is
// the end opposite RootDir.
func (p *Path) LastEnter() bool {
	if len(p.Steps) == 0 {
		return !p.RootDir
	}
	return p.Steps[len(p.Steps)-1].Dir
}

// Leaving is the end the walk would continue through.
func (p *Path) Leaving() bool {
	return !p.LastEnter()
}

// Extend appends edge e, which must be attached to the leaving end of the
// last node. nodeLen is the length of the node entered.
func (p *Path) Extend(e *Edge, nodeLen int) error {
	from := NodeEnd{p.Last(), p.Leaving()}
	to, ok := e.Other(from)
	if !ok {
		return fmt.Errorf("[Extend] edge %s not attached to %v", e.Key, from)
	}
	p.Steps = append(p.Steps, Step{
		Edge:    e.Key,
		Node:    to.Node,
		Dir:     to.Dir,
		Length:  e.Length,
		NodeLen: nodeLen,
		Sub:     e.SubPath(from),
		Pseudo:  e.Pseudo,
		Fill:    e.FillFrom(from),
	})
	return nil
}

// Distance is the gap between the leaving tip of the root and the entering
// tip of the last node: every edge length plus every interior node.
func (p *Path) Distance() int {
	d := 0
	for i, s := range p.Steps {
		d += s.Length
		if i < len(p.Steps)-1 {
			d += s.NodeLen
		}
	}
	return d
}

// SeqLength is the length of the spelled sequence.
func (p *Path) SeqLength() int {
	l := p.RootLen
	for _, s := range p.Steps {
		l += s.Length + s.NodeLen
	}
	return l
}

// Offsets returns, per step, the distance from the root leaving tip to the
// entering tip of the step's node.
func (p *Path) Offsets() []int {
	arr := make([]int, len(p.Steps))
	d := 0
	for i, s := range p.Steps {
		d += s.Length
		arr[i] = d
		d += s.NodeLen
	}
	return arr
}

// Nodes lists the nodes of the walk with their entering flag, root first.
func (p *Path) Nodes() []NodeEnd {
	arr := make([]NodeEnd, 0, len(p.Steps)+1)
	arr = append(arr, NodeEnd{p.Root, !p.RootDir})
	for _, s := range p.Steps {
		arr = append(arr, NodeEnd{s.Node, s.Dir})
	}
	return arr
}

// Count returns how often id appears in the walk.
func (p *Path) Count(id NodeID) (c int) {
	if p.Root == id {
		c++
	}
	for _, s := range p.Steps {
		if s.Node == id {
			c++
		}
	}
	return c
}

func (p *Path) Contains(id NodeID) bool {
	return p.Count(id) > 0
}

func (p *Path) Clone() *Path {
	np := *p
	np.Steps = make([]Step, len(p.Steps))
	copy(np.Steps, p.Steps)
	if p.binLen != nil {
		np.binLen = make(map[int]int, len(p.binLen))
		for b, l := range p.binLen {
			np.binLen[b] = l
		}
	}
	return &np
}

// Reverse returns the same walk read from the other end.
func (p *Path) Reverse() *Path {
	k := len(p.Steps)
	rp := &Path{
		Root:      p.Last(),
		RootDir:   p.LastEnter(),
		RootLen:   p.RootLen,
		Steps:     make([]Step, 0, k),
		Deviation: p.Deviation,
		Score:     p.Score,
		Votes:     p.Votes,
	}
	if k > 0 {
		rp.RootLen = p.Steps[k-1].NodeLen
	}
	for j := k - 1; j >= 0; j-- {
		s := p.Steps[j]
		ns := Step{Edge: s.Edge, Length: s.Length, Pseudo: s.Pseudo, Fill: reverseFill(s.Fill)}
		if s.Sub != nil {
			ns.Sub = s.Sub.Reverse()
		}
		if j == 0 {
			ns.Node, ns.Dir, ns.NodeLen = p.Root, p.RootDir, p.RootLen
		} else {
			prev := p.Steps[j-1]
			ns.Node, ns.Dir, ns.NodeLen = prev.Node, !prev.Dir, prev.NodeLen
		}
		rp.Steps = append(rp.Steps, ns)
	}
	if p.binLen != nil {
		rp.binLen = make(map[int]int, len(p.binLen))
		for b, l := range p.binLen {
			rp.binLen[b] = l
		}
	}
	return rp
}

// Primitive expands every composite step into the walk it stands for.
func (p *Path) Primitive() *Path {
	np := p.Clone()
	np.Steps = np.Steps[:0:0]
	for _, s := range p.Steps {
		if s.Sub == nil {
			np.Steps = append(np.Steps, s)
			continue
		}
		np.Steps = append(np.Steps, s.Sub.Primitive().Steps...)
	}
	return np
}

func (p *Path) walkHash() uint64 {
	nodes := make([]NodeID, len(p.Steps))
	dirs := make([]bool, len(p.Steps))
	for i, s := range p.Steps {
		nodes[i], dirs[i] = s.Node, s.Dir
	}
	return pathHash(p.Root, p.RootDir, nodes, dirs)
}

// Signature identifies the primitive walk regardless of the direction it is
// read in.
func (p *Path) Signature() uint64 {
	prim := p.Primitive()
	h1, h2 := prim.walkHash(), prim.Reverse().walkHash()
	if h1 < h2 {
		return h1
	}
	return h2
}

// AddBin records length bases of anchor evidence for bin.
func (p *Path) AddBin(bin, length int) {
	if p.binLen == nil {
		p.binLen = make(map[int]int)
	}
	p.binLen[bin] += length
}

// Bin is the bin backed by the most anchor length, -1 when none is known.
func (p *Path) Bin() int {
	best, bestLen := -1, 0
	for b, l := range p.binLen {
		if l > bestLen || (l == bestLen && b < best) {
			best, bestLen = b, l
		}
	}
	return best
}

func (p *Path) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d%c", p.Root, dirChar(p.RootDir)))
	for _, s := range p.Steps {
		sb.WriteString(fmt.Sprintf("->%d%c(%d)", s.Node, dirChar(s.Dir), s.Length))
	}
	return sb.String()
}

// PseudoPath is a one step walk over a gap edge that is not in the graph
// yet; the edge is created when the walk is committed.
func (g *Graph) PseudoPath(src NodeID, srcDir bool, dst NodeID, dstEnter bool, length int) (*Path, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ns, nd := g.liveNode(src), g.liveNode(dst)
	if ns == nil || nd == nil {
		return nil, fmt.Errorf("[PseudoPath] %d-%d: %w", src, dst, ErrNodeNotFound)
	}
	key, _ := CanonicalKey(ns.Name, srcDir, nd.Name, dstEnter)
	p := NewPath(src, srcDir, ns.Len())
	p.Steps = append(p.Steps, Step{Edge: key, Node: dst, Dir: dstEnter, Length: length, NodeLen: nd.Len(), Pseudo: true})
	return p, nil
}

// IsPseudo reports a walk made of a single gap step.
func (p *Path) IsPseudo() bool {
	return len(p.Steps) == 1 && p.Steps[0].Pseudo
}
