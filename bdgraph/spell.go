package bdgraph

import (
	"bytes"
	"fmt"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"
)

// ReverseComplement returns a new slice, seq is left untouched.
func ReverseComplement(seq []byte) []byte {
	cp := make([]byte, len(seq))
	copy(cp, seq)
	s := linear.NewSeq("", alphabet.BytesToLetters(cp), alphabet.DNAredundant)
	s.RevComp()
	return alphabet.LettersToBytes(s.Seq)
}

// oriented returns the node sequence as read with entering flag dir.
func oriented(n *Node, dir bool) []byte {
	if dir {
		return ReverseComplement(n.Seq)
	}
	return n.Seq
}

// Spell concatenates the sequences along p. Overlaps are trimmed from the
// entered node, gaps are filled with the edge fill or N.
func (g *Graph) Spell(p *Path) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.spell(p)
}

func (g *Graph) spell(p *Path) ([]byte, error) {
	prim := p.Primitive()
	root := g.node(prim.Root)
	if root == nil {
		return nil, fmt.Errorf("[Spell] root %d: %w", prim.Root, ErrNodeNotFound)
	}
	var buf bytes.Buffer
	buf.Grow(prim.SeqLength())
	buf.Write(oriented(root, !prim.RootDir))
	for _, s := range prim.Steps {
		n := g.node(s.Node)
		if n == nil {
			return nil, fmt.Errorf("[Spell] node %d: %w", s.Node, ErrNodeNotFound)
		}
		seq := oriented(n, s.Dir)
		if s.Length < 0 {
			trim := -s.Length
			if trim > len(seq) {
				return nil, fmt.Errorf("[Spell] overlap %d longer than node %s (%d)", trim, n.Name, len(seq))
			}
			seq = seq[trim:]
		} else if s.Length > 0 {
			if len(s.Fill) > 0 {
				buf.Write(s.Fill)
			} else {
				buf.Write(bytes.Repeat([]byte{'N'}, s.Length))
			}
		}
		buf.Write(seq)
	}
	return buf.Bytes(), nil
}
