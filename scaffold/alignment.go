package scaffold

import (
	"fmt"
	"sort"

	"npgraph/bdgraph"
	"npgraph/config"
	"npgraph/utils"
)

// Alignment of a read to one contig. Ref coordinates are 1-based inclusive
// with RefStart <= RefEnd. ReadStart is the read position aligned to
// RefStart, so a reverse strand alignment has ReadStart > ReadEnd.
type Alignment struct {
	ReadName  string
	Node      bdgraph.NodeID
	NodeLen   int
	RefStart  int
	RefEnd    int
	ReadStart int
	ReadEnd   int
	ReadLen   int
	Strand    bool // true: forward
	Primary   bool
	MapQ      int
	AlnLen    int

	Useful bool
}

func (a *Alignment) ReadAlignStart() int {
	return utils.MinInt(a.ReadStart, a.ReadEnd)
}

func (a *Alignment) ReadAlignEnd() int {
	return utils.MaxInt(a.ReadStart, a.ReadEnd)
}

func (a *Alignment) sign() int {
	if a.Strand {
		return 1
	}
	return -1
}

// rate is read bases per reference base.
func (a *Alignment) rate() float64 {
	ref := a.RefEnd - a.RefStart + 1
	if ref <= 0 {
		return 1
	}
	return float64(a.ReadAlignEnd()-a.ReadAlignStart()+1) / float64(ref)
}

// Classify sets Useful: a primary alignment of sufficient quality that
// reaches, on both sides, the end of either the read or the contig.
func (a *Alignment) Classify(cfg config.Config) bool {
	a.Useful = false
	if !a.Primary || a.MapQ < cfg.MinMapQ {
		return false
	}
	leftRead := a.ReadAlignStart() - 1
	rightRead := a.ReadLen - a.ReadAlignEnd()
	leftRef, rightRef := a.RefStart-1, a.NodeLen-a.RefEnd
	if !a.Strand {
		leftRef, rightRef = rightRef, leftRef
	}
	if utils.MinInt(leftRead, leftRef) >= cfg.OverhangTolerance {
		return false
	}
	if utils.MinInt(rightRead, rightRef) >= cfg.OverhangTolerance {
		return false
	}
	a.Useful = true
	return true
}

// Reverse expresses the alignment on the reverse complemented read.
func (a *Alignment) Reverse() *Alignment {
	ra := *a
	ra.ReadStart = a.ReadLen - a.ReadStart + 1
	ra.ReadEnd = a.ReadLen - a.ReadEnd + 1
	ra.Strand = !a.Strand
	return &ra
}

func (a *Alignment) String() string {
	s := '+'
	if !a.Strand {
		s = '-'
	}
	return fmt.Sprintf("%s %d:%d-%d/%d read:%d-%d/%d %c q%d", a.ReadName, a.Node, a.RefStart, a.RefEnd, a.NodeLen, a.ReadStart, a.ReadEnd, a.ReadLen, s, a.MapQ)
}

// AlignmentArr sorts by position on the read.
type AlignmentArr []*Alignment

func (arr AlignmentArr) Len() int { return len(arr) }
func (arr AlignmentArr) Less(i, j int) bool {
	return arr[i].ReadAlignStart() < arr[j].ReadAlignStart()
}
func (arr AlignmentArr) Swap(i, j int) { arr[i], arr[j] = arr[j], arr[i] }

// tip projects the contig 5' end onto the read, as a position between
// bases.
func (a *Alignment) tip(rate float64) float64 {
	p := float64(a.ReadStart - 1)
	if !a.Strand {
		p++
	}
	return p - float64(a.sign())*float64(a.RefStart-1)*rate
}

// AlignmentVector places b relative to a from their positions on a read.
func AlignmentVector(a, b *Alignment) Vector {
	rate := (a.rate() + b.rate()) / 2
	sa, sb := a.sign(), b.sign()
	pa, pb := a.tip(rate), b.tip(rate)
	return Vector{
		Magnitude: utils.Round((pb - pa) * float64(sa) / rate),
		Direction: sa * sb,
	}
}

// AlignedRead is a read with its alignments in read order.
type AlignedRead struct {
	Name       string
	ReadLen    int
	Seq        []byte
	Alignments []*Alignment
}

func (r *AlignedRead) Append(a *Alignment) {
	r.Alignments = append(r.Alignments, a)
}

func (r *AlignedRead) Sort() {
	sort.Stable(AlignmentArr(r.Alignments))
}

func (r *AlignedRead) First() *Alignment {
	return r.Alignments[0]
}

func (r *AlignedRead) Last() *Alignment {
	return r.Alignments[len(r.Alignments)-1]
}

// Reverse returns the reverse complemented read.
func (r *AlignedRead) Reverse() *AlignedRead {
	rr := &AlignedRead{Name: r.Name, ReadLen: r.ReadLen, Alignments: make([]*Alignment, len(r.Alignments))}
	if len(r.Seq) > 0 {
		rr.Seq = bdgraph.ReverseComplement(r.Seq)
	}
	for i, a := range r.Alignments {
		rr.Alignments[len(r.Alignments)-1-i] = a.Reverse()
	}
	return rr
}

// Vector places alignment j relative to alignment i.
func (r *AlignedRead) Vector(i, j int) Vector {
	return AlignmentVector(r.Alignments[i], r.Alignments[j])
}

// Sub keeps alignments i to j inclusive; coordinates stay those of the
// whole read.
func (r *AlignedRead) Sub(i, j int) *AlignedRead {
	sub := &AlignedRead{Name: r.Name, ReadLen: r.ReadLen, Seq: r.Seq}
	sub.Alignments = append(sub.Alignments, r.Alignments[i:j+1]...)
	return sub
}

// SubSeq returns the read bases strictly between alignments i and j, nil
// when the read sequence is unknown or the alignments overlap.
func (r *AlignedRead) SubSeq(i, j int) []byte {
	if len(r.Seq) == 0 {
		return nil
	}
	start := r.Alignments[i].ReadAlignEnd()
	end := r.Alignments[j].ReadAlignStart() - 1
	if start >= end || end > len(r.Seq) {
		return nil
	}
	return r.Seq[start:end]
}

func (r *AlignedRead) String() string {
	return fmt.Sprintf("%s len:%d alignments:%d", r.Name, r.ReadLen, len(r.Alignments))
}
