package scaffold

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npgraph/bdgraph"
	"npgraph/config"
)

func TestComposeAssociative(t *testing.T) {
	cases := []struct {
		name    string
		x, y, z Vector
	}{
		{"all forward", Vector{100, 1}, Vector{250, 1}, Vector{-40, 1}},
		{"mixed", Vector{1200, -1}, Vector{-300, 1}, Vector{800, -1}},
		{"all reverse", Vector{-50, -1}, Vector{70, -1}, Vector{900, -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			left := Compose(tc.z, Compose(tc.y, tc.x))
			right := Compose(Compose(tc.z, tc.y), tc.x)
			assert.Equal(t, left, right)
		})
	}
}

func TestReverse(t *testing.T) {
	for _, v := range []Vector{{1100, 1}, {-300, 1}, {1600, -1}, {-100, -1}} {
		assert.Equal(t, v, v.Reverse().Reverse())
		assert.Equal(t, Identity, Compose(v.Reverse(), v), "%v", v)
		assert.Equal(t, Identity, Compose(v, v.Reverse()), "%v", v)
		// an inverted placement stays inverted seen from the other contig
		assert.Equal(t, v.Direction, v.Reverse().Direction)
	}
}

func TestDistanceAndAlong(t *testing.T) {
	v := Vector{1100, 1}
	assert.Equal(t, 100, v.Distance(1000, 500))
	assert.Equal(t, 100, v.Along(bdgraph.OUT, 1000, 500))
	assert.False(t, v.EnterFlag(bdgraph.OUT))

	r := Vector{1600, -1}
	assert.Equal(t, 100, r.Distance(1000, 500))
	assert.Equal(t, 100, r.Along(bdgraph.OUT, 1000, 500))
	assert.True(t, r.EnterFlag(bdgraph.OUT))

	// target lying before the reference 5' end
	l := Vector{-600, 1}
	assert.Equal(t, 100, l.Distance(1000, 500))
	assert.Equal(t, 100, l.Along(bdgraph.IN, 1000, 500))
	assert.True(t, l.EnterFlag(bdgraph.IN))

	assert.True(t, v.Consistent(Vector{1350, 1}, 300, 0.2))
	assert.False(t, v.Consistent(Vector{1500, 1}, 300, 0.2))
	assert.False(t, v.Consistent(Vector{1100, -1}, 300, 0.2))
}

func twoHitRead() *AlignedRead {
	seq := bytes.Repeat([]byte("ACGTTGCA"), 375)
	r := &AlignedRead{Name: "read1", ReadLen: 3000, Seq: seq}
	r.Append(&Alignment{ReadName: "read1", Node: 2, NodeLen: 500, RefStart: 1, RefEnd: 500, ReadStart: 1101, ReadEnd: 1600, ReadLen: 3000, Strand: true, Primary: true, MapQ: 60})
	r.Append(&Alignment{ReadName: "read1", Node: 1, NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1, ReadEnd: 1000, ReadLen: 3000, Strand: true, Primary: true, MapQ: 60})
	r.Sort()
	return r
}

func TestAlignmentVector(t *testing.T) {
	r := twoHitRead()
	require.Equal(t, bdgraph.NodeID(1), r.First().Node)
	assert.Equal(t, Vector{1100, 1}, r.Vector(0, 1))
	assert.Equal(t, Vector{-1100, 1}, r.Vector(1, 0))

	rev := &Alignment{Node: 2, NodeLen: 500, RefStart: 1, RefEnd: 500, ReadStart: 1600, ReadEnd: 1101, ReadLen: 3000}
	assert.Equal(t, Vector{1600, -1}, AlignmentVector(r.First(), rev))

	ra := &Alignment{Node: 1, NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1000, ReadEnd: 1, ReadLen: 3000}
	v := AlignmentVector(ra, r.Last())
	assert.Equal(t, Vector{-100, -1}, v)
	assert.Equal(t, 100, v.Distance(1000, 500))
}

func TestReadReverse(t *testing.T) {
	r := twoHitRead()
	rr := r.Reverse()
	require.Len(t, rr.Alignments, 2)
	assert.Equal(t, bdgraph.NodeID(2), rr.First().Node)
	assert.Equal(t, 1900, rr.First().ReadStart)
	assert.Equal(t, 1401, rr.First().ReadEnd)
	assert.False(t, rr.First().Strand)
	assert.Equal(t, r.Vector(1, 0), rr.Vector(0, 1))
	assert.Equal(t, bdgraph.ReverseComplement(r.Seq), rr.Seq)
	assert.Equal(t, r.Alignments[0].ReadStart, rr.Reverse().Alignments[0].ReadStart)
}

func TestSubSeq(t *testing.T) {
	r := twoHitRead()
	gap := r.SubSeq(0, 1)
	assert.Len(t, gap, 100)
	assert.Equal(t, r.Seq[1000:1100], gap)
	assert.Nil(t, r.SubSeq(1, 0))

	sub := r.Sub(1, 1)
	require.Len(t, sub.Alignments, 1)
	assert.Equal(t, bdgraph.NodeID(2), sub.First().Node)
}

func TestClassify(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		name string
		aln  Alignment
		want bool
	}{
		{"contig start to read start", Alignment{NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1, ReadEnd: 1000, ReadLen: 3000, Strand: true, Primary: true, MapQ: 60}, true},
		{"contained in the read", Alignment{NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1501, ReadEnd: 2500, ReadLen: 5000, Strand: true, Primary: true, MapQ: 60}, true},
		{"reverse with ends swapped", Alignment{NodeLen: 5000, RefStart: 4001, RefEnd: 5000, ReadStart: 2500, ReadEnd: 1501, ReadLen: 2500, Strand: false, Primary: true, MapQ: 60}, true},
		{"inside a long contig", Alignment{NodeLen: 5000, RefStart: 2001, RefEnd: 3000, ReadStart: 1001, ReadEnd: 2000, ReadLen: 3000, Strand: true, Primary: true, MapQ: 60}, false},
		{"secondary", Alignment{NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1, ReadEnd: 1000, ReadLen: 3000, Strand: true, MapQ: 60}, false},
		{"low quality", Alignment{NodeLen: 1000, RefStart: 1, RefEnd: 1000, ReadStart: 1, ReadEnd: 1000, ReadLen: 3000, Strand: true, Primary: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.aln
			assert.Equal(t, tc.want, a.Classify(cfg))
			assert.Equal(t, tc.want, a.Useful)
		})
	}
}
