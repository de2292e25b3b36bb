// Package binner groups single copy contigs into coverage bins and assigns
// bin multiplicities to every node and edge of the graph by flow
// conservation.
package binner

import (
	"fmt"
	"math"
	"sort"
	"sync"

	logging "github.com/op/go-logging"

	"npgraph/bdgraph"
	"npgraph/config"
	"npgraph/utils"
)

var log = logging.MustGetLogger("binner")

// BinMap is a bin id to multiplicity map.
type BinMap map[int]int

func (m BinMap) clone() BinMap {
	cm := make(BinMap, len(m))
	for b, c := range m {
		cm[b] = c
	}
	return cm
}

func (m BinMap) add(o BinMap, times int) {
	for b, c := range o {
		m[b] += c * times
	}
}

func (m BinMap) String() string {
	ids := make([]int, 0, len(m))
	for b := range m {
		ids = append(ids, b)
	}
	sort.Ints(ids)
	s := "{"
	for i, b := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d:%d", b, m[b])
	}
	return s + "}"
}

// PopBin is a population of single copy contigs sharing one coverage level.
type PopBin struct {
	ID      int
	Len     int
	covSum  float64
	Members map[bdgraph.NodeID]bool
}

func NewPopBin(id int) *PopBin {
	return &PopBin{ID: id, Members: make(map[bdgraph.NodeID]bool)}
}

func (b *PopBin) Add(n *bdgraph.Node) {
	if b.Members[n.ID] {
		return
	}
	b.Members[n.ID] = true
	b.Len += n.Len()
	b.covSum += n.Cov * float64(n.Len())
}

func (b *PopBin) Remove(n *bdgraph.Node) {
	if !b.Members[n.ID] {
		return
	}
	delete(b.Members, n.ID)
	b.Len -= n.Len()
	b.covSum -= n.Cov * float64(n.Len())
}

// Coverage is the length weighted mean coverage of the members.
func (b *PopBin) Coverage() float64 {
	if b.Len == 0 {
		return 0
	}
	return b.covSum / float64(b.Len)
}

// IsClose compares coverages on a log scale.
func (b *PopBin) IsClose(o *PopBin, cfg config.Config) bool {
	c1, c2 := b.Coverage(), o.Coverage()
	if c1 <= 0 || c2 <= 0 {
		return false
	}
	return math.Abs(math.Log(c1/c2)) <= cfg.DBSCANEps
}

func (b *PopBin) merge(o *PopBin) {
	for id := range o.Members {
		b.Members[id] = true
	}
	b.Len += o.Len
	b.covSum += o.covSum
}

func (b *PopBin) String() string {
	return fmt.Sprintf("bin %d cov:%.2f len:%d members:%d", b.ID, b.Coverage(), b.Len, len(b.Members))
}

type Binner struct {
	cfg config.Config
	g   *bdgraph.Graph

	mu       sync.RWMutex
	bins     []*PopBin
	nodeBins map[bdgraph.NodeID]BinMap
	edgeBins map[bdgraph.EdgeKey]BinMap
	edgeCov  map[bdgraph.EdgeKey]float64
}

func New(g *bdgraph.Graph, cfg config.Config) *Binner {
	return &Binner{
		cfg:      cfg,
		g:        g,
		nodeBins: make(map[bdgraph.NodeID]BinMap),
		edgeBins: make(map[bdgraph.EdgeKey]BinMap),
		edgeCov:  make(map[bdgraph.EdgeKey]float64),
	}
}

// Run clusters the contigs, estimates edge coverage and assigns bin
// multiplicities.
func (bn *Binner) Run() {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	bn.bins = bn.clusterBins()
	for _, b := range bn.bins {
		log.Noticef("[Run] %v", b)
		for id := range b.Members {
			bn.nodeBins[id] = BinMap{b.ID: 1}
		}
	}
	if len(bn.bins) == 0 {
		log.Warningf("[Run] no coverage bin found, no contig will be treated as unique")
		return
	}
	bn.edgeCov = bn.gradientDescent()
	known := bn.propagate()
	guessed := bn.guess()
	bn.fillNodes()
	log.Noticef("[Run] %d edges resolved by flow, %d guessed from coverage, %d unresolved",
		known, guessed, len(bn.edgeCov)-len(bn.edgeBins))
}

func (bn *Binner) Bins() []*PopBin {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	return append([]*PopBin(nil), bn.bins...)
}

func (bn *Binner) Bin(id int) *PopBin {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	if id < 0 || id >= len(bn.bins) {
		return nil
	}
	return bn.bins[id]
}

// UniqueBin returns the bin of a node carrying exactly one bin with
// multiplicity one, nil otherwise.
func (bn *Binner) UniqueBin(id bdgraph.NodeID) *PopBin {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	m := bn.nodeBins[id]
	if len(m) != 1 {
		return nil
	}
	for b, c := range m {
		if c == 1 {
			return bn.bins[b]
		}
	}
	return nil
}

func (bn *Binner) IsUnique(id bdgraph.NodeID) bool {
	return bn.UniqueBin(id) != nil
}

func (bn *Binner) NodeBins(id bdgraph.NodeID) BinMap {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	if m, ok := bn.nodeBins[id]; ok {
		return m.clone()
	}
	return nil
}

func (bn *Binner) EdgeBins(key bdgraph.EdgeKey) BinMap {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	if m, ok := bn.edgeBins[key]; ok {
		return m.clone()
	}
	return nil
}

func (bn *Binner) EdgeCoverage(key bdgraph.EdgeKey) float64 {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	return bn.edgeCov[key]
}

// Reduced follows a graph reduction: retired edges and removed nodes lose
// their maps, the composite edge carries one copy of bin, interior nodes give
// up one copy per use.
func (bn *Binner) Reduced(red bdgraph.Reduction, bin int) {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	for _, k := range red.Removed {
		delete(bn.edgeBins, k)
		delete(bn.edgeCov, k)
	}
	removed := make(map[bdgraph.NodeID]bool, len(red.RemovedNodes))
	for _, id := range red.RemovedNodes {
		removed[id] = true
		delete(bn.nodeBins, id)
	}
	if red.Edge != nil && bin >= 0 && bin < len(bn.bins) {
		bn.edgeBins[red.Edge.Key] = BinMap{bin: 1}
		bn.edgeCov[red.Edge.Key] = bn.bins[bin].Coverage()
	}
	if bin < 0 {
		return
	}
	for id, c := range red.Interior {
		if removed[id] {
			continue
		}
		m, ok := bn.nodeBins[id]
		if !ok {
			continue
		}
		m[bin] -= c
		if m[bin] <= 0 {
			delete(m, bin)
		}
	}
}

// nearest finds the bin and multiplicity best explaining cov; err is the
// relative deviation from multiplicity times bin coverage.
func (bn *Binner) nearest(cov float64) (bin, mult int, err float64) {
	bin, err = -1, math.Inf(1)
	for _, b := range bn.bins {
		bc := b.Coverage()
		if bc <= 0 {
			continue
		}
		m := utils.Round(cov / bc)
		if m < 1 {
			m = 1
		}
		e := math.Abs(cov-float64(m)*bc) / (float64(m) * bc)
		if e < err {
			bin, mult, err = b.ID, m, e
		}
	}
	return bin, mult, err
}
