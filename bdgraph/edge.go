package bdgraph

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
)

// EdgeKey identifies an edge independently of the direction it is walked.
// Primitive keys look like "<a><o|i>,<b><o|i>" with the lexically smaller
// node name first; composite keys append "#" and a hash of the walk they
// replace.
type EdgeKey string

type Edge struct {
	Key       EdgeKey
	Source    NodeID
	Target    NodeID
	SourceDir bool
	TargetDir bool

	// Length is the gap between the two ends, negative for an overlap.
	Length int

	// Path is set on composite edges and holds the primitive walk from
	// (Source, SourceDir) to (Target, TargetDir).
	Path *Path

	// Pseudo edges close a gap no graph path explains. Fill holds bases
	// oriented from Source to Target when a consensus was computed.
	Pseudo bool
	Fill   []byte
}

// CanonicalKey orders the two ends so the key does not depend on which end
// is given first. swap reports whether the arguments were exchanged.
func CanonicalKey(nameA string, dirA bool, nameB string, dirB bool) (key EdgeKey, swap bool) {
	switch {
	case nameA > nameB:
		swap = true
	case nameA == nameB && dirA != dirB:
		// a loop between the two ends of one node is always written out end first
		swap = !dirA
	}
	if swap {
		nameA, nameB = nameB, nameA
		dirA, dirB = dirB, dirA
	}
	var sb strings.Builder
	sb.Grow(len(nameA) + len(nameB) + 3)
	sb.WriteString(nameA)
	sb.WriteByte(dirChar(dirA))
	sb.WriteByte(',')
	sb.WriteString(nameB)
	sb.WriteByte(dirChar(dirB))
	return EdgeKey(sb.String()), swap
}

func compositeKey(key EdgeKey, p *Path) EdgeKey {
	return EdgeKey(fmt.Sprintf("%s#%016x", key, p.Signature()))
}

func (e *Edge) IsComposite() bool {
	return e.Path != nil
}

// Primitive returns the key without the composite suffix.
func (k EdgeKey) Primitive() EdgeKey {
	if i := strings.IndexByte(string(k), '#'); i >= 0 {
		return k[:i]
	}
	return k
}

// Other returns the end reached when the edge is entered at from.
func (e *Edge) Other(from NodeEnd) (to NodeEnd, ok bool) {
	switch {
	case e.Source == from.Node && e.SourceDir == from.Dir:
		return NodeEnd{e.Target, e.TargetDir}, true
	case e.Target == from.Node && e.TargetDir == from.Dir:
		return NodeEnd{e.Source, e.SourceDir}, true
	}
	return NodeEnd{}, false
}

// Forward reports whether walking from end from follows the stored
// Source to Target orientation.
func (e *Edge) Forward(from NodeEnd) bool {
	return e.Source == from.Node && e.SourceDir == from.Dir
}

// Reverse returns the edge stored from its other end. The key does not
// depend on orientation and is kept.
func (e *Edge) Reverse() *Edge {
	re := &Edge{
		Key:       e.Key,
		Source:    e.Target,
		SourceDir: e.TargetDir,
		Target:    e.Source,
		TargetDir: e.SourceDir,
		Length:    e.Length,
		Pseudo:    e.Pseudo,
		Fill:      reverseFill(e.Fill),
	}
	if e.Path != nil {
		re.Path = e.Path.Reverse()
	}
	return re
}

// SubPath returns the composite walk oriented to start at end from.
func (e *Edge) SubPath(from NodeEnd) *Path {
	if e.Path == nil {
		return nil
	}
	if e.Forward(from) {
		return e.Path
	}
	return e.Path.Reverse()
}

// FillFrom returns the fill bases oriented to start at end from.
func (e *Edge) FillFrom(from NodeEnd) []byte {
	if len(e.Fill) == 0 || e.Forward(from) {
		return e.Fill
	}
	return ReverseComplement(e.Fill)
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s %v->%v len:%d", e.Key, NodeEnd{e.Source, e.SourceDir}, NodeEnd{e.Target, e.TargetDir}, e.Length)
}

func reverseFill(fill []byte) []byte {
	if len(fill) == 0 {
		return fill
	}
	return ReverseComplement(fill)
}

// pathHash feeds the walk as (node, flag) pairs.
func pathHash(root NodeID, rootDir bool, nodes []NodeID, dirs []bool) uint64 {
	h := xxhash.New()
	buf := make([]byte, 5)
	put := func(id NodeID, d bool) {
		buf[0], buf[1], buf[2], buf[3] = byte(id), byte(id>>8), byte(id>>16), byte(id>>24)
		buf[4] = dirChar(d)
		h.Write(buf)
	}
	put(root, rootDir)
	for i, id := range nodes {
		put(id, dirs[i])
	}
	return h.Sum64()
}
