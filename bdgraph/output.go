package bdgraph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/awalterschulze/gographviz"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// WriteFasta spells every contig, see Contigs.
func (g *Graph) WriteFasta(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fw := fasta.NewWriter(w, 60)
	for _, c := range g.contigs() {
		seq, err := g.contigSeq(c)
		if err != nil {
			return err
		}
		s := linear.NewSeq(c.Name, alphabet.BytesToLetters(seq), alphabet.DNAredundant)
		s.Desc = "length=" + strconv.Itoa(len(seq))
		if c.Circular {
			s.Desc += " circular=true"
		}
		if _, err := fw.Write(s); err != nil {
			return fmt.Errorf("[WriteFasta] write %s: %w", c.Name, err)
		}
	}
	return nil
}

func gfaSign(enter bool) byte {
	if enter {
		return '-'
	}
	return '+'
}

func gfaOverlap(l int) string {
	if l < 0 {
		return strconv.Itoa(-l) + "M"
	}
	return "0M"
}

// WriteGFA writes segments and links. Composite edges are expanded; every
// interior node of a composite walk becomes its own segment named
// <name>_<copy>, and a node left without edges by the walk is not written
// again.
func (g *Graph) WriteGFA(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "H\tVN:Z:1.0\n")
	segment := func(name string, cov float64, seq []byte) {
		fmt.Fprintf(bw, "S\t%s\t%s\tLN:i:%d\tKC:i:%d\n", name, seq, len(seq), int(cov*float64(len(seq))+0.5))
	}
	link := func(a string, leaveA bool, b string, enterB bool, length int) {
		fmt.Fprintf(bw, "L\t%s\t%c\t%s\t%c\t%s\n", a, gfaSign(!leaveA), b, gfaSign(enterB), gfaOverlap(length))
	}
	abs := g.absorbed()
	for _, n := range g.nodes[1:] {
		if n.GetDeleteFlag() == 0 && !abs[n.ID] {
			segment(n.Name, n.Cov, n.Seq)
		}
	}
	copies := make(map[NodeID]int)
	gaps := 0
	for _, e := range g.sortedEdges() {
		src, dst := g.nodes[e.Source].Name, g.nodes[e.Target].Name
		if e.Pseudo && len(e.Fill) > 0 {
			gaps++
			name := "gap_" + strconv.Itoa(gaps)
			segment(name, 0, e.Fill)
			link(src, e.SourceDir, name, IN, 0)
			link(name, OUT, dst, e.TargetDir, 0)
			continue
		}
		if e.Path == nil {
			link(src, e.SourceDir, dst, e.TargetDir, e.Length)
			continue
		}
		prim := e.Path.Primitive()
		prev, leave := src, prim.RootDir
		for i, s := range prim.Steps {
			name := dst
			if i < len(prim.Steps)-1 {
				n := g.nodes[s.Node]
				copies[s.Node]++
				name = n.Name + "_" + strconv.Itoa(copies[s.Node])
				segment(name, n.Cov, n.Seq)
			}
			link(prev, leave, name, s.Dir, s.Length)
			prev, leave = name, !s.Dir
		}
	}
	return bw.Flush()
}

func (g *Graph) sortedEdges() []*Edge {
	arr := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		arr = append(arr, e)
	}
	sortEdges(arr)
	return arr
}

// WriteDot renders the graph with graphviz; edge labels carry the end flags.
func (g *Graph) WriteDot(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gv := gographviz.NewGraph()
	gv.SetName("G")
	gv.SetDir(true)
	gv.SetStrict(false)
	for _, n := range g.nodes[1:] {
		if n.GetDeleteFlag() > 0 {
			continue
		}
		attr := make(map[string]string)
		attr["color"] = "Green"
		attr["shape"] = "record"
		attr["label"] = "\"" + n.Name + "|len:" + strconv.Itoa(n.Len()) + "|cov:" + strconv.FormatFloat(n.Cov, 'f', 1, 64) + "\""
		gv.AddNode("G", strconv.Itoa(int(n.ID)), attr)
	}
	for _, e := range g.sortedEdges() {
		attr := make(map[string]string)
		attr["color"] = "Blue"
		if e.Path != nil {
			attr["color"] = "Red"
		} else if e.Pseudo {
			attr["style"] = "dashed"
		}
		attr["label"] = "\"" + string(dirChar(e.SourceDir)) + string(dirChar(e.TargetDir)) + " len:" + strconv.Itoa(e.Length) + "\""
		gv.AddEdge(strconv.Itoa(int(e.Source)), strconv.Itoa(int(e.Target)), true, attr)
	}
	_, err := io.WriteString(w, gv.String())
	return err
}
