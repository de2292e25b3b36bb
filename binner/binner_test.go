package binner

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npgraph/bdgraph"
	"npgraph/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBSCANMinPts = 2
	return cfg
}

type contigDef struct {
	name string
	len  int
	cov  float64
}

func buildGraph(t *testing.T, nodes []contigDef, links [][2]string) (*bdgraph.Graph, map[string]bdgraph.NodeID) {
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
	return g, ids
}

func TestDBSCAN(t *testing.T) {
	var pts covPointArr
	for i, x := range []float64{0, 0.1, 0.2, 2.0, 2.1, 5.0} {
		pts = append(pts, covPoint{node: &bdgraph.Node{ID: bdgraph.NodeID(i + 1)}, x: x})
	}
	clusters := dbscan(pts, 0.25, 2)
	require.Len(t, clusters, 2)
	assert.Equal(t, []int{0, 1, 2}, clusters[0])
	assert.Equal(t, []int{3, 4}, clusters[1])

	assert.Empty(t, dbscan(pts, 0.25, 4))
}

func TestPopBin(t *testing.T) {
	b := NewPopBin(0)
	n1 := &bdgraph.Node{ID: 1, Seq: make([]byte, 1000), Cov: 30}
	n2 := &bdgraph.Node{ID: 2, Seq: make([]byte, 3000), Cov: 34}
	b.Add(n1)
	b.Add(n2)
	b.Add(n2)
	assert.InDelta(t, 33.0, b.Coverage(), 1e-9)
	assert.Equal(t, 4000, b.Len)
	b.Remove(n2)
	assert.InDelta(t, 30.0, b.Coverage(), 1e-9)

	o := NewPopBin(1)
	o.Add(&bdgraph.Node{ID: 3, Seq: make([]byte, 1000), Cov: 33})
	assert.True(t, b.IsClose(o, config.Default()))
	far := NewPopBin(2)
	far.Add(&bdgraph.Node{ID: 4, Seq: make([]byte, 1000), Cov: 90})
	assert.False(t, b.IsClose(far, config.Default()))
}

func TestGradientDescent(t *testing.T) {
	g, ids := buildGraph(t, []contigDef{{"A", 1000, 30}, {"B", 1000, 36}, {"C", 1000, 30}},
		[][2]string{{"A", "B"}, {"B", "C"}})
	bn := New(g, testConfig())
	cov := bn.gradientDescent()
	for _, e := range g.Edges() {
		assert.InDelta(t, 33.0, cov[e.Key], 0.05, "%s", e.Key)
	}
	_ = ids
}

func TestLinearChain(t *testing.T) {
	g, ids := buildGraph(t, []contigDef{{"A", 2000, 30}, {"B", 200, 60}, {"C", 2000, 32}},
		[][2]string{{"A", "B"}, {"B", "C"}})
	bn := New(g, testConfig())
	bn.Run()
	require.Len(t, bn.Bins(), 1)
	bin := bn.Bin(0)
	assert.InDelta(t, 31.0, bin.Coverage(), 1e-9)
	assert.Same(t, bin, bn.UniqueBin(ids["A"]))
	assert.Same(t, bin, bn.UniqueBin(ids["C"]))
	assert.Nil(t, bn.UniqueBin(ids["B"]))
	assert.Equal(t, BinMap{0: 2}, bn.NodeBins(ids["B"]))
	for _, e := range g.Edges() {
		assert.Equal(t, BinMap{0: 1}, bn.EdgeBins(e.Key), "%s", e.Key)
	}
	assert.Nil(t, bn.Bin(3))
}

// every node whose edges are all resolved carries as much flow in as out
func assertConservation(t *testing.T, g *bdgraph.Graph, bn *Binner) {
	t.Helper()
	for _, n := range g.Nodes() {
		var sums [2]int
		resolved, sides := true, 0
		for i, d := range [2]bool{bdgraph.IN, bdgraph.OUT} {
			es := g.EdgesAt(n.ID, d)
			if len(es) > 0 {
				sides++
			}
			for _, e := range es {
				m := bn.EdgeBins(e.Key)
				if m == nil {
					resolved = false
				}
				for _, c := range m {
					sums[i] += c
				}
			}
		}
		if resolved && sides == 2 {
			assert.Equal(t, sums[0], sums[1], "node %s", n.Name)
		}
	}
}

func TestConservationThroughRepeat(t *testing.T) {
	g, ids := buildGraph(t,
		[]contigDef{{"A", 2000, 30}, {"D", 2000, 31}, {"R", 500, 60}, {"C", 2000, 29}, {"E", 2000, 30}},
		[][2]string{{"A", "R"}, {"D", "R"}, {"R", "C"}, {"R", "E"}})
	bn := New(g, testConfig())
	bn.Run()
	require.Len(t, bn.Bins(), 1)
	assert.Equal(t, BinMap{0: 2}, bn.NodeBins(ids["R"]))
	for _, e := range g.Edges() {
		assert.Equal(t, BinMap{0: 1}, bn.EdgeBins(e.Key), "%s", e.Key)
		assert.InDelta(t, 30.0, bn.EdgeCoverage(e.Key), 1.5)
	}
	assertConservation(t, g, bn)
	for _, name := range []string{"A", "C", "D", "E"} {
		assert.True(t, bn.IsUnique(ids[name]), name)
	}
}

func TestReduced(t *testing.T) {
	g, ids := buildGraph(t, []contigDef{{"A", 2000, 30}, {"B", 200, 60}, {"C", 2000, 32}},
		[][2]string{{"A", "B"}, {"B", "C"}})
	bn := New(g, testConfig())
	bn.Run()
	binCov := bn.Bin(0).Coverage()

	p := bdgraph.NewPath(ids["A"], bdgraph.OUT, 2000)
	for _, name := range []string{"B", "C"} {
		last := p.Last()
		es := g.EdgesAt(last, p.Leaving())
		require.Len(t, es, 1)
		require.NoError(t, p.Extend(es[0], g.NodeLen(ids[name])))
	}
	red, ok := g.Reduce(p, binCov)
	require.True(t, ok)
	bn.Reduced(red, 0)
	assert.Equal(t, BinMap{0: 1}, bn.EdgeBins(red.Edge.Key))
	for _, k := range red.Removed {
		assert.Nil(t, bn.EdgeBins(k))
	}
	assert.Equal(t, BinMap{0: 1}, bn.NodeBins(ids["B"]))
	assert.False(t, math.IsNaN(bn.EdgeCoverage(red.Edge.Key)))
}

func TestNoBins(t *testing.T) {
	g, ids := buildGraph(t, []contigDef{{"A", 200, 30}, {"B", 200, 60}}, [][2]string{{"A", "B"}})
	bn := New(g, testConfig())
	bn.Run()
	assert.Empty(t, bn.Bins())
	assert.Nil(t, bn.UniqueBin(ids["A"]))
}
