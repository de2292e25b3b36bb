package bridge

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"npgraph/bdgraph"
	"npgraph/binner"
	"npgraph/config"
	"npgraph/scaffold"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBSCANMinPts = 2
	return cfg
}

type contig struct {
	name string
	len  int
	cov  float64
}

type fixture struct {
	g   *bdgraph.Graph
	bn  *binner.Binner
	ids map[string]bdgraph.NodeID
	cfg config.Config
}

// newFixture links every pair forward to forward with no overlap.
func newFixture(t *testing.T, cfg config.Config, nodes []contig, links [][2]string) *fixture {
	t.Helper()
	g := bdgraph.NewGraph(0)
	ids := make(map[string]bdgraph.NodeID)
	for _, n := range nodes {
		id, err := g.AddNode(n.name, bytes.Repeat([]byte("A"), n.len), n.cov)
		require.NoError(t, err)
		ids[n.name] = id
	}
	for _, l := range links {
		_, err := g.AddEdge(ids[l[0]], bdgraph.OUT, ids[l[1]], bdgraph.IN, 0)
		require.NoError(t, err)
	}
	bn := binner.New(g, cfg)
	bn.Run()
	return &fixture{g: g, bn: bn, ids: ids, cfg: cfg}
}

// read lays the named contigs forward one after the other, separated by
// the given gaps.
func (f *fixture) read(name string, contigs []string, gaps []int) *scaffold.AlignedRead {
	r := &scaffold.AlignedRead{Name: name}
	pos := 1
	for i, c := range contigs {
		if i > 0 {
			pos += gaps[i-1]
		}
		n := f.g.Node(f.ids[c])
		r.Append(&scaffold.Alignment{
			ReadName:  name,
			Node:      n.ID,
			NodeLen:   n.Len(),
			RefStart:  1,
			RefEnd:    n.Len(),
			ReadStart: pos,
			ReadEnd:   pos + n.Len() - 1,
			Strand:    true,
			Primary:   true,
			MapQ:      60,
		})
		pos += n.Len()
	}
	r.ReadLen = pos - 1
	for _, a := range r.Alignments {
		a.ReadLen = r.ReadLen
	}
	return r
}

func abc(t *testing.T) *fixture {
	return newFixture(t, testConfig(),
		[]contig{{"A", 2000, 30}, {"B", 500, 60}, {"C", 2000, 30}},
		[][2]string{{"A", "B"}, {"B", "C"}})
}

func composite(g *bdgraph.Graph, id bdgraph.NodeID, dir bool) *bdgraph.Edge {
	for _, e := range g.EdgesAt(id, dir) {
		if e.IsComposite() {
			return e
		}
	}
	return nil
}

func TestMergeReadAndReverse(t *testing.T) {
	f := abc(t)
	r := f.read("r1", []string{"A", "B", "C"}, []int{0, 0})
	r.Sort()
	b := NewBridge(f.ids["A"], bdgraph.OUT, 2000, 0)
	require.True(t, b.Accepts(r))
	require.NoError(t, b.MergeRead(r, true, 0, f.cfg))
	assert.Equal(t, TwoAnchors, b.Level())
	assert.Equal(t, 500, b.Gap())
	ek, ok := b.EndKey()
	require.True(t, ok)
	assert.Equal(t, bdgraph.NodeEnd{Node: f.ids["C"], Dir: bdgraph.IN}, ek)
	require.Len(t, b.Steps, 1)
	assert.Equal(t, scaffold.Vector{Magnitude: 2000, Direction: 1}, b.Steps[0].Vec)
	assert.Equal(t, 0, b.along(b.Steps[0]))

	rb := b.Reverse()
	assert.Equal(t, ek, rb.Key())
	assert.Equal(t, 500, rb.Gap())
	rek, _ := rb.EndKey()
	assert.Equal(t, b.Key(), rek)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, 0, rb.along(rb.Steps[0]))

	// the same read seen from C folds into the same waypoint
	o := NewBridge(f.ids["C"], bdgraph.IN, 2000, 0)
	rr := r.Reverse()
	require.True(t, o.Accepts(rr))
	require.NoError(t, o.MergeRead(rr, true, 0, f.cfg))
	require.NoError(t, b.Merge(o, f.cfg))
	require.Len(t, b.Steps, 1)
	assert.Equal(t, 2, b.Steps[0].Score)
	assert.Equal(t, 2, b.Reads())
}

func TestMergeReadInconsistent(t *testing.T) {
	f := abc(t)
	b := NewBridge(f.ids["A"], bdgraph.OUT, 2000, 0)
	require.NoError(t, b.MergeRead(f.read("r1", []string{"A", "C"}, []int{500}), true, 0, f.cfg))
	err := b.MergeRead(f.read("r2", []string{"A", "C"}, []int{5000}), true, 0, f.cfg)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, 1, b.Reads())
	assert.Equal(t, 500, b.Gap())
}

func TestExtendScore(t *testing.T) {
	f := abc(t)
	s := NewSearcher(f.g, f.bn, f.cfg)
	n := f.g.Node(f.ids["B"])
	assert.Zero(t, s.extendScore(n, 0, 30))
	assert.Zero(t, s.extendScore(n, 1, 30))
	assert.InDelta(t, -5.0, s.extendScore(n, 2, 30), 1e-9)
	assert.Less(t, s.extendScore(&bdgraph.Node{Seq: make([]byte, 500), Cov: 15}, 0, 30), 0.0)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, testConfig(),
		[]contig{{"X", 2000, 30}, {"R1", 500, 15}, {"R2", 500, 15}, {"L", 1500, 15}, {"Y", 2000, 30}},
		[][2]string{{"X", "R1"}, {"X", "R2"}, {"X", "L"}, {"R1", "Y"}, {"R2", "Y"}, {"L", "Y"}})
	s := NewSearcher(f.g, f.bn, f.cfg)
	paths := s.Search(Query{Src: f.ids["X"], SrcDir: bdgraph.OUT, Dst: f.ids["Y"], DstEnter: bdgraph.IN, Target: 520, BinCov: 30})
	require.Len(t, paths, 2)
	for i, name := range []string{"R1", "R2"} {
		assert.Equal(t, f.ids[name], paths[i].Steps[0].Node)
		assert.Equal(t, -20, paths[i].Deviation)
	}

	paths = s.Search(Query{Src: f.ids["X"], SrcDir: bdgraph.OUT, Dst: f.ids["Y"], DstEnter: bdgraph.IN, Target: 1500, BinCov: 30})
	require.Len(t, paths, 1)
	assert.Equal(t, f.ids["L"], paths[0].Steps[0].Node)

	assert.Empty(t, s.Search(Query{Src: f.ids["X"], SrcDir: bdgraph.OUT, Dst: f.ids["Y"], DstEnter: bdgraph.IN, Target: 5000, BinCov: 30}))
}

func TestEngineResolvesChain(t *testing.T) {
	f := abc(t)
	require.True(t, f.bn.IsUnique(f.ids["A"]))
	require.False(t, f.bn.IsUnique(f.ids["B"]))
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	e.ProcessRead(context.Background(), f.read("r1", []string{"A", "B", "C"}, []int{0, 0}))

	b := e.Bridge(bdgraph.NodeEnd{Node: f.ids["A"], Dir: bdgraph.OUT})
	require.NotNil(t, b)
	assert.Same(t, b, e.Bridge(bdgraph.NodeEnd{Node: f.ids["C"], Dir: bdgraph.IN}))
	assert.Equal(t, Resolved, b.Level())
	assert.True(t, b.Reduced())
	assert.Equal(t, 1, e.Committed())

	c := composite(f.g, f.ids["A"], bdgraph.OUT)
	require.NotNil(t, c)
	assert.True(t, c.Path.Contains(f.ids["B"]))
	assert.Len(t, f.g.EdgesAt(f.ids["A"], bdgraph.OUT), 1)
	assert.True(t, f.g.Contains(f.ids["B"]))
	assert.Equal(t, binner.BinMap{0: 1}, f.bn.NodeBins(f.ids["B"]))

	// further evidence leaves a reduced bridge alone
	e.ProcessRead(context.Background(), f.read("r2", []string{"A", "B", "C"}, []int{0, 0}))
	assert.Equal(t, 1, e.Committed())
	assert.Equal(t, map[Completion]int{Resolved: 1}, e.Report())
}

func repeatFixture(t *testing.T) *fixture {
	return newFixture(t, testConfig(),
		[]contig{{"X", 2000, 30}, {"R1", 500, 15}, {"R2", 500, 15}, {"Y", 2000, 30}},
		[][2]string{{"X", "R1"}, {"X", "R2"}, {"R1", "Y"}, {"R2", "Y"}})
}

func TestEngineVotes(t *testing.T) {
	f := repeatFixture(t)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	key := bdgraph.NodeEnd{Node: f.ids["X"], Dir: bdgraph.OUT}
	var levels []Completion
	for i, via := range []string{"R2", "R1", "R1"} {
		e.ProcessRead(context.Background(), f.read("r", []string{"X", via, "Y"}, []int{0, 0}))
		b := e.Bridge(key)
		require.NotNil(t, b, "read %d", i)
		levels = append(levels, b.Level())
	}
	// a read placing Y far off is refused
	e.ProcessRead(context.Background(), f.read("bad", []string{"X", "Y"}, []int{6000}))
	levels = append(levels, e.Bridge(key).Level())
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1])
	}
	assert.Equal(t, Connected, levels[len(levels)-1])
	assert.Zero(t, e.Committed())

	e.Finish(context.Background())
	assert.Equal(t, 1, e.Committed())
	c := composite(f.g, f.ids["X"], bdgraph.OUT)
	require.NotNil(t, c)
	assert.True(t, c.Path.Contains(f.ids["R1"]))
	assert.False(t, c.Path.Contains(f.ids["R2"]))
	assert.False(t, f.g.Contains(f.ids["R1"]))
	assert.True(t, f.g.Contains(f.ids["R2"]))
}

func TestEngineVotesNeverDrop(t *testing.T) {
	f := repeatFixture(t)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	key := bdgraph.NodeEnd{Node: f.ids["X"], Dir: bdgraph.OUT}
	e.ProcessRead(context.Background(), f.read("r0", []string{"X", "R2", "Y"}, []int{0, 0}))

	// from here on every read agrees on R1
	var total, first []int
	for i := 1; i <= 4; i++ {
		e.ProcessRead(context.Background(), f.read(fmt.Sprintf("r%d", i), []string{"X", "R1", "Y"}, []int{0, 0}))
		b := e.Bridge(key)
		require.NotNil(t, b, "read %d", i)
		require.NotEmpty(t, b.Segments, "read %d", i)
		best := b.BestPath()
		require.NotNil(t, best)
		assert.True(t, best.Contains(f.ids["R1"]), "read %d", i)
		total = append(total, best.Votes)
		first = append(first, b.Segments[0].Best().Votes)
	}
	for i := 1; i < len(total); i++ {
		assert.GreaterOrEqual(t, total[i], total[i-1], "%v", total)
		assert.GreaterOrEqual(t, first[i], first[i-1], "%v", first)
	}
	b := e.Bridge(key)
	assert.True(t, b.Reduced())
	assert.Equal(t, 3, total[len(total)-1])
	assert.Equal(t, 1, e.Committed())
}

func TestEngineVoteTie(t *testing.T) {
	f := repeatFixture(t)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	e.ProcessRead(context.Background(), f.read("r1", []string{"X", "R2", "Y"}, []int{0, 0}))
	e.ProcessRead(context.Background(), f.read("r2", []string{"X", "R1", "Y"}, []int{0, 0}))
	e.Finish(context.Background())
	c := composite(f.g, f.ids["X"], bdgraph.OUT)
	require.NotNil(t, c)
	assert.True(t, c.Path.Contains(f.ids["R1"]))
}

type fixedConsensus struct {
	seq  []byte
	seen [][]byte
}

func (c *fixedConsensus) Consensus(_ context.Context, seqs [][]byte) ([]byte, error) {
	c.seen = append(c.seen, seqs...)
	return c.seq, nil
}

func TestEngineUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.AllowGapFill = false
	f := newFixture(t, cfg, []contig{{"A", 2000, 30}, {"C", 2000, 30}}, nil)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	e.ProcessRead(context.Background(), f.read("r1", []string{"A", "C"}, []int{500}))
	b := e.Bridge(bdgraph.NodeEnd{Node: f.ids["A"], Dir: bdgraph.OUT})
	require.NotNil(t, b)
	assert.Equal(t, OneAnchor, b.Level())
	assert.Nil(t, e.Bridge(bdgraph.NodeEnd{Node: f.ids["C"], Dir: bdgraph.IN}))
	assert.Zero(t, f.g.EdgeCount())
}

func TestEngineGapFill(t *testing.T) {
	f := newFixture(t, testConfig(), []contig{{"A", 2000, 30}, {"C", 2000, 30}}, nil)
	cons := &fixedConsensus{seq: []byte("ACGT")}
	e := NewEngine(f.g, f.bn, cons, f.cfg)
	r := f.read("r1", []string{"A", "C"}, []int{500})
	r.Seq = bytes.Repeat([]byte("G"), r.ReadLen)
	e.ProcessRead(context.Background(), r)

	require.Equal(t, 1, e.Committed())
	es := f.g.EdgesAt(f.ids["A"], bdgraph.OUT)
	require.Len(t, es, 1)
	assert.True(t, es[0].Pseudo)
	assert.Equal(t, 500, es[0].Length)
	assert.Equal(t, []byte("ACGT"), es[0].FillFrom(bdgraph.NodeEnd{Node: f.ids["A"], Dir: bdgraph.OUT}))
	require.Len(t, cons.seen, 1)
	assert.Len(t, cons.seen[0], 500)
}

func TestEngineGapNoConsensus(t *testing.T) {
	f := newFixture(t, testConfig(), []contig{{"A", 2000, 30}, {"C", 2000, 30}}, nil)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	e.ProcessRead(context.Background(), f.read("r1", []string{"A", "C"}, []int{500}))

	require.Equal(t, 1, e.Committed())
	es := f.g.EdgesAt(f.ids["A"], bdgraph.OUT)
	require.Len(t, es, 1)
	assert.True(t, es[0].Pseudo)
	assert.Equal(t, 500, es[0].Length)
	assert.Nil(t, es[0].Fill)
	cs := f.g.Contigs()
	require.Len(t, cs, 1)
	assert.Equal(t, 4500, cs[0].Length)
}

func TestEngineReduceRefused(t *testing.T) {
	f := newFixture(t, testConfig(), []contig{{"A", 2000, 30}, {"C", 2000, 30}}, [][2]string{{"A", "C"}})
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	key := bdgraph.NodeEnd{Node: f.ids["A"], Dir: bdgraph.OUT}
	// the walk is the single edge A-C, there is nothing to reduce
	for _, name := range []string{"r1", "r2"} {
		e.ProcessRead(context.Background(), f.read(name, []string{"A", "C"}, []int{0}))
		b := e.Bridge(key)
		require.NotNil(t, b)
		assert.Equal(t, Resolved, b.Level())
		assert.False(t, b.Reduced())
	}
	e.Finish(context.Background())
	assert.False(t, e.Bridge(key).Reduced())
	assert.Zero(t, e.Committed())
	assert.Equal(t, 1, f.g.EdgeCount())
}

func TestRunWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := repeatFixture(t)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	in := make(chan *scaffold.AlignedRead)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 4; i++ {
		eg.Go(func() error { return e.Run(ctx, in) })
	}
	for i := 0; i < 12; i++ {
		in <- f.read(fmt.Sprintf("r%d", i), []string{"X", "R1", "Y"}, []int{0, 0})
	}
	close(in)
	require.NoError(t, eg.Wait())
	e.Finish(context.Background())

	assert.Equal(t, 1, e.Committed())
	c := composite(f.g, f.ids["X"], bdgraph.OUT)
	require.NotNil(t, c)
	assert.True(t, c.Path.Contains(f.ids["R1"]))
	assert.True(t, f.g.Contains(f.ids["R2"]))
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := abc(t)
	e := NewEngine(f.g, f.bn, nil, f.cfg)
	in := make(chan *scaffold.AlignedRead)
	eg, ctx := errgroup.WithContext(context.Background())
	eg.Go(func() error { return e.Run(ctx, in) })
	in <- f.read("r1", []string{"A", "B", "C"}, []int{0, 0})
	in <- f.read("r2", []string{"B", "C"}, []int{0})
	close(in)
	require.NoError(t, eg.Wait())
	assert.Equal(t, 1, e.Committed())

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(cctx, make(chan *scaffold.AlignedRead)), context.Canceled)
}
