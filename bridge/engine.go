package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"

	"npgraph/bdgraph"
	"npgraph/binner"
	"npgraph/config"
	"npgraph/scaffold"
)

// Consensus builds one sequence from the read bases spanning a gap.
type Consensus interface {
	Consensus(ctx context.Context, seqs [][]byte) ([]byte, error)
}

// Engine turns aligned reads into bridges and commits the resolved ones to
// the graph. It is safe for concurrent use.
type Engine struct {
	cfg    config.Config
	g      *bdgraph.Graph
	bn     *binner.Binner
	cons   Consensus
	search *Searcher

	mu      sync.Mutex
	bridges map[bdgraph.NodeEnd]*Bridge

	reads     int
	discarded int
	committed int
}

func NewEngine(g *bdgraph.Graph, bn *binner.Binner, cons Consensus, cfg config.Config) *Engine {
	return &Engine{
		cfg:     cfg,
		g:       g,
		bn:      bn,
		cons:    cons,
		search:  NewSearcher(g, bn, cfg),
		bridges: make(map[bdgraph.NodeEnd]*Bridge),
	}
}

// split cuts a read at its unique alignments. Spans run between two
// consecutive unique contigs, the head and tail leave the outermost ones.
func (e *Engine) split(r *scaffold.AlignedRead) (spans, ends []*scaffold.AlignedRead) {
	var uniq []int
	for i, a := range r.Alignments {
		if e.bn.IsUnique(a.Node) {
			uniq = append(uniq, i)
		}
	}
	if len(uniq) == 0 {
		return nil, nil
	}
	n := len(r.Alignments)
	u0, uLast := uniq[0], uniq[len(uniq)-1]
	if u0 > 0 {
		ends = append(ends, r.Sub(0, u0).Reverse())
	}
	for k := 1; k < len(uniq); k++ {
		i, j := uniq[k-1], uniq[k]
		if r.Alignments[i].Node == r.Alignments[j].Node {
			continue
		}
		spans = append(spans, r.Sub(i, j))
	}
	if uLast < n-1 {
		ends = append(ends, r.Sub(uLast, n-1))
	}
	return spans, ends
}

// ProcessRead feeds one read, alignments in any order, to the engine. Graph
// searches run outside the engine lock; bridge updates and commits are
// serialised.
func (e *Engine) ProcessRead(ctx context.Context, r *scaffold.AlignedRead) {
	useful := &scaffold.AlignedRead{Name: r.Name, ReadLen: r.ReadLen, Seq: r.Seq}
	for _, a := range r.Alignments {
		if a.Classify(e.cfg) {
			useful.Append(a)
		}
	}
	useful.Sort()
	spans, ends := e.split(useful)

	e.mu.Lock()
	e.reads++
	if len(spans) == 0 && len(ends) == 0 {
		e.discarded++
		e.mu.Unlock()
		log.Debugf("[ProcessRead] %v: nothing to bridge", useful)
		return
	}
	e.mu.Unlock()
	for _, s := range spans {
		e.ingest(ctx, s, true)
	}
	for _, s := range ends {
		e.ingest(ctx, s, false)
	}
}

func (e *Engine) binOf(id bdgraph.NodeID) int {
	if pb := e.bn.UniqueBin(id); pb != nil {
		return pb.ID
	}
	return -1
}

// ingest adds a sub-read starting at a unique contig. With span its last
// alignment is a unique contig too.
func (e *Engine) ingest(ctx context.Context, r *scaffold.AlignedRead, span bool) {
	e.mu.Lock()
	b := e.merge(r, span)
	var j *connectJob
	if b != nil && b.needsConnect(e.cfg.MinSupport) {
		j = b.plan(e.search)
	}
	if j == nil {
		if b != nil {
			e.settle(ctx, b)
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	j.run(ctx, e.search, e.cons)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bridges[b.Key()] != b {
		// merged into another bridge meanwhile
		return
	}
	ek, hadEnd := b.EndKey()
	if _, err := j.apply(); errors.Is(err, ErrUnreachable) && hadEnd && e.bridges[ek] == b {
		delete(e.bridges, ek)
	}
	e.settle(ctx, b)
}

// merge folds r into the bridge at its anchors and returns the registered
// bridge, nil when r was refused. e.mu must be held.
func (e *Engine) merge(r *scaffold.AlignedRead, span bool) *Bridge {
	first := r.First()
	kA := bdgraph.NodeEnd{Node: first.Node, Dir: first.Strand}
	b := e.bridges[kA]
	binB := -1
	if span {
		last := r.Last()
		kB := bdgraph.NodeEnd{Node: last.Node, Dir: r.Vector(0, len(r.Alignments)-1).EnterFlag(first.Strand)}
		binB = e.binOf(last.Node)
		if b == nil {
			b = e.bridges[kB]
		}
	}
	if b == nil {
		b = NewBridge(kA.Node, kA.Dir, first.NodeLen, e.binOf(kA.Node))
	}
	if !b.Accepts(r) {
		r = r.Reverse()
		if span {
			binB = e.binOf(r.Last().Node)
		}
	}
	if err := b.MergeRead(r, span, binB, e.cfg); err != nil {
		log.Warningf("[merge] %v: %v", r, err)
		e.discarded++
		return nil
	}
	return e.register(b)
}

// join merges the less complete of two bridges into the other and returns
// the survivor.
func (e *Engine) join(b, o *Bridge) (*Bridge, bool) {
	if o.Level() > b.Level() {
		b, o = o, b
	}
	if err := b.Merge(o, e.cfg); err != nil {
		log.Warningf("[join] %v into %v: %v", o, b, err)
		return b, false
	}
	e.unregister(o)
	return b, true
}

func (e *Engine) unregister(b *Bridge) {
	for k, v := range e.bridges {
		if v == b {
			delete(e.bridges, k)
		}
	}
}

// register files b under both its anchors, merging with a bridge already
// found at its end anchor.
func (e *Engine) register(b *Bridge) *Bridge {
	e.bridges[b.Key()] = b
	ek, ok := b.EndKey()
	if !ok {
		return b
	}
	if o := e.bridges[ek]; o != nil && o != b {
		m, ok := e.join(b, o)
		if !ok {
			return b
		}
		b = m
	}
	e.bridges[b.Key()] = b
	if ek, ok := b.EndKey(); ok {
		e.bridges[ek] = b
	}
	return b
}

// settle recounts the votes of a connected bridge and commits it once
// resolved. e.mu must be held.
func (e *Engine) settle(ctx context.Context, b *Bridge) {
	if b.Level() >= Connected && !b.reduced {
		b.vote(e.cfg)
	}
	if b.Level() == Resolved && !b.reduced {
		e.commit(ctx, b)
	}
}

// commit reduces the best walk of b in the graph. A bridge is marked
// reduced once its walk is in the graph and is then never committed again.
// A pseudo edge without a consensus fill is left as a run of N.
func (e *Engine) commit(ctx context.Context, b *Bridge) {
	p := b.BestPath()
	if p == nil || b.reduced {
		return
	}
	bin := p.Bin()
	if p.IsPseudo() {
		st := p.Steps[0]
		edge, err := e.g.AddPseudoEdge(p.Root, p.RootDir, st.Node, st.Dir, st.Length, b.fill)
		if err != nil && !errors.Is(err, bdgraph.ErrEdgeExists) {
			log.Warningf("[commit] %v: %v", b, err)
			return
		}
		b.reduced = true
		e.bn.Reduced(bdgraph.Reduction{Edge: edge}, bin)
		e.committed++
		log.Infof("[commit] %v: pseudo edge %v filled:%v", b.Key(), edge, b.fill != nil)
		return
	}
	binCov := 0.0
	if pb := e.bn.Bin(bin); pb != nil {
		binCov = pb.Coverage()
	}
	red, ok := e.g.Reduce(p, binCov)
	if !ok {
		log.Debugf("[commit] %v: %v left as is", b.Key(), p)
		return
	}
	b.reduced = true
	e.bn.Reduced(red, bin)
	e.committed++
	log.Infof("[commit] %v: %v, %d edges retired", b.Key(), red.Edge, len(red.Removed))
}

// Run consumes reads until in is closed or ctx is done.
func (e *Engine) Run(ctx context.Context, in <-chan *scaffold.AlignedRead) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			e.ProcessRead(ctx, r)
		}
	}
}

// unique lists every bridge once, ordered by key.
func (e *Engine) unique() []*Bridge {
	seen := make(map[*Bridge]bool)
	var arr []*Bridge
	for _, b := range e.bridges {
		if !seen[b] {
			seen[b] = true
			arr = append(arr, b)
		}
	}
	sort.Slice(arr, func(i, j int) bool { return keyLess(arr[i].Key(), arr[j].Key()) })
	return arr
}

func keyLess(a, b bdgraph.NodeEnd) bool {
	if a.Node != b.Node {
		return a.Node < b.Node
	}
	return !a.Dir && b.Dir
}

// Finish retries the bridges still lacking a walk, then commits the best
// walk of every connected bridge, most complete and best supported first.
// It runs after the last read, holding the engine lock throughout.
func (e *Engine) Finish(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.unique() {
		if b.Level() == TwoAnchors && !b.reduced {
			ek, _ := b.EndKey()
			if err := b.Connect(ctx, e.search, e.cons); errors.Is(err, ErrUnreachable) && e.bridges[ek] == b {
				delete(e.bridges, ek)
			}
		}
	}
	arr := e.unique()
	sort.SliceStable(arr, func(i, j int) bool {
		li, lj := arr[i].Level(), arr[j].Level()
		if li != lj {
			return li > lj
		}
		return arr[i].reads > arr[j].reads
	})
	for _, b := range arr {
		if ctx.Err() != nil {
			return
		}
		if b.Level() >= Connected && !b.reduced {
			e.commit(ctx, b)
		}
	}
	log.Noticef("[Finish] reads:%d discarded:%d committed:%d %v", e.reads, e.discarded, e.committed, e.report())
}

// Report counts bridges per completion level.
func (e *Engine) Report() map[Completion]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report()
}

func (e *Engine) report() map[Completion]int {
	m := make(map[Completion]int)
	for _, b := range e.unique() {
		m[b.Level()]++
	}
	return m
}

// Bridge returns the bridge registered at a contig end.
func (e *Engine) Bridge(ne bdgraph.NodeEnd) *Bridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridges[ne]
}

func (e *Engine) Committed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed
}
