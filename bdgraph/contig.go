package bdgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gonum/floats"
)

// Contig is one output sequence. Components that are a simple chain or a
// simple cycle are spelled as one walk; nodes of branching components are
// emitted one by one.
type Contig struct {
	Name     string
	Path     *Path
	Length   int
	Circular bool

	// closing edge of a cycle
	closeLen  int
	closeFill []byte
}

// Components groups the live nodes into connected components, each sorted
// by ID, ordered by their smallest ID.
func (g *Graph) Components() [][]NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.components()
}

func (g *Graph) components() (comps [][]NodeID) {
	seen := make([]bool, len(g.nodes))
	for id := 1; id < len(g.nodes); id++ {
		if seen[id] || g.nodes[id].GetDeleteFlag() > 0 {
			continue
		}
		var comp []NodeID
		stack := []NodeID{NodeID(id)}
		seen[id] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, n)
			for _, d := range [2]bool{IN, OUT} {
				for _, e := range g.edgesAt(n, d) {
					to, _ := e.Other(NodeEnd{n, d})
					if !seen[to.Node] {
						seen[to.Node] = true
						stack = append(stack, to.Node)
					}
				}
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		comps = append(comps, comp)
	}
	return comps
}

func (g *Graph) simple(comp []NodeID) bool {
	for _, n := range comp {
		for _, d := range [2]bool{IN, OUT} {
			edges := g.edgesAt(n, d)
			if len(edges) > 1 {
				return false
			}
			if len(edges) == 1 {
				e := edges[0]
				if e.Source == e.Target && e.SourceDir == e.TargetDir {
					return false
				}
			}
		}
	}
	return true
}

// walkChain follows the single edge at each end starting from (start, dir).
func (g *Graph) walkChain(start NodeID, dir bool) (p *Path, closing *Edge) {
	p = NewPath(start, dir, g.nodes[start].Len())
	for {
		edges := g.edgesAt(p.Last(), p.Leaving())
		if len(edges) == 0 {
			return p, nil
		}
		e := edges[0]
		to, _ := e.Other(NodeEnd{p.Last(), p.Leaving()})
		if to.Node == start {
			return p, e
		}
		if err := p.Extend(e, g.nodes[to.Node].Len()); err != nil {
			log.Errorf("[walkChain] %v", err)
			return p, nil
		}
	}
}

// absorbed lists the live nodes left without edges whose sequence a
// composite edge already spells. They are not output on their own.
func (g *Graph) absorbed() map[NodeID]bool {
	m := make(map[NodeID]bool)
	for _, e := range g.edges {
		if e.Path == nil {
			continue
		}
		prim := e.Path.Primitive()
		for _, s := range prim.Steps[:len(prim.Steps)-1] {
			if g.liveNode(s.Node) != nil && g.degree(s.Node) == 0 {
				m[s.Node] = true
			}
		}
	}
	return m
}

func (g *Graph) contigs() []Contig {
	var arr []Contig
	abs := g.absorbed()
	for _, comp := range g.components() {
		if len(comp) == 1 && abs[comp[0]] {
			continue
		}
		if !g.simple(comp) {
			for _, id := range comp {
				n := g.nodes[id]
				arr = append(arr, Contig{Name: n.Name, Path: NewPath(id, OUT, n.Len()), Length: n.Len(), Circular: n.Circular})
			}
			continue
		}
		start, dir, found := comp[0], OUT, false
		for _, id := range comp {
			in, out := len(g.adj[id][0]), len(g.adj[id][1])
			if in == 0 || out == 0 {
				start, dir, found = id, out > 0 || in == 0, true
				break
			}
		}
		p, closing := g.walkChain(start, dir)
		c := Contig{Path: p, Length: p.SeqLength()}
		if !found && closing != nil {
			from := NodeEnd{p.Last(), p.Leaving()}
			c.Circular = true
			c.closeLen = closing.Length
			c.closeFill = closing.FillFrom(from)
			c.Length += closing.Length
		} else if len(p.Steps) == 0 {
			c.Circular = g.nodes[start].Circular
		}
		c.Name = g.contigName(p)
		arr = append(arr, c)
	}
	return arr
}

func (g *Graph) contigName(p *Path) string {
	if len(p.Steps) == 0 {
		return g.nodes[p.Root].Name
	}
	var sb strings.Builder
	for i, ne := range p.Nodes() {
		if i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(g.nodes[ne.Node].Name)
		if ne.Dir {
			sb.WriteByte('-')
		} else {
			sb.WriteByte('+')
		}
	}
	return sb.String()
}

// Contigs lists the output sequences without spelling them.
func (g *Graph) Contigs() []Contig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.contigs()
}

func (g *Graph) contigSeq(c Contig) ([]byte, error) {
	seq, err := g.spell(c.Path)
	if err != nil {
		return nil, err
	}
	if c.Circular {
		switch {
		case c.closeLen < 0:
			if -c.closeLen > len(seq) {
				return nil, fmt.Errorf("[contigSeq] closing overlap %d longer than %s", -c.closeLen, c.Name)
			}
			seq = seq[:len(seq)+c.closeLen]
		case c.closeLen > 0 && len(c.closeFill) > 0:
			seq = append(seq, c.closeFill...)
		case c.closeLen > 0:
			for i := 0; i < c.closeLen; i++ {
				seq = append(seq, 'N')
			}
		}
	}
	return seq, nil
}

type Stats struct {
	Nodes    int
	Edges    int
	Count    int
	Circular int
	Total    int
	Longest  int
	N50      int
	N75      int
}

func (s Stats) String() string {
	return fmt.Sprintf("nodes:%d edges:%d sequences:%d circular:%d total:%d longest:%d N50:%d N75:%d",
		s.Nodes, s.Edges, s.Count, s.Circular, s.Total, s.Longest, s.N50, s.N75)
}

// NX returns the length L such that sequences of length >= L hold at least
// frac of the total.
func NX(lens []int, frac float64) int {
	if len(lens) == 0 {
		return 0
	}
	arr := make([]float64, len(lens))
	for i, l := range lens {
		arr[i] = float64(l)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(arr)))
	total := floats.Sum(arr)
	cum := 0.0
	for _, l := range arr {
		cum += l
		if cum >= total*frac {
			return int(l)
		}
	}
	return int(arr[len(arr)-1])
}

// Stats is computed in one pass under the read lock.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats()
}

func (g *Graph) stats() Stats {
	var s Stats
	for _, n := range g.nodes[1:] {
		if n.GetDeleteFlag() == 0 {
			s.Nodes++
		}
	}
	s.Edges = len(g.edges)
	cs := g.contigs()
	lens := make([]int, len(cs))
	for i, c := range cs {
		lens[i] = c.Length
		s.Total += c.Length
		if c.Length > s.Longest {
			s.Longest = c.Length
		}
		if c.Circular {
			s.Circular++
		}
	}
	s.Count = len(cs)
	s.N50, s.N75 = NX(lens, 0.5), NX(lens, 0.75)
	return s
}
