// Package bdgraph is the bidirected assembly graph: contigs are nodes, every
// edge joins two node ends. An end is identified by an orientation flag,
// true for the 3' ("out") end and false for the 5' ("in") end.
//
// Nodes live in an arena addressed by NodeID. Removed nodes stay in the arena
// flagged deleted so that paths reduced earlier can still be spelled. All
// traversal and mutation goes through the Graph.
package bdgraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("bdgraph")

type NodeID uint32

const (
	// orientation flags of a node end
	OUT, IN = true, false

	// NilNode is never handed out, ID 0 of the arena is reserved
	NilNode NodeID = 0
)

var (
	ErrNodeNotFound = errors.New("node not found in graph")
	ErrEdgeExists   = errors.New("edge already in graph")
	ErrEdgeNotFound = errors.New("edge not found in graph")
)

type Node struct {
	ID       NodeID
	Name     string
	Seq      []byte
	Cov      float64
	Circular bool
	Flag     uint8 // from low~high, 1:Delete
}

func (n *Node) Len() int {
	return len(n.Seq)
}

func (n *Node) GetDeleteFlag() uint8 {
	return n.Flag & 0x1
}

func (n *Node) SetDeleteFlag() {
	n.Flag |= 0x1
}

func (n *Node) String() string {
	return fmt.Sprintf("ID:%d Name:%s len:%d cov:%.2f", n.ID, n.Name, len(n.Seq), n.Cov)
}

// NodeEnd names one end of a node.
type NodeEnd struct {
	Node NodeID
	Dir  bool
}

func dirChar(d bool) byte {
	if d {
		return 'o'
	}
	return 'i'
}

func (ne NodeEnd) String() string {
	return fmt.Sprintf("%d%c", ne.Node, dirChar(ne.Dir))
}

func endIdx(dir bool) int {
	if dir {
		return 1
	}
	return 0
}

type Graph struct {
	mu    sync.RWMutex
	nodes []*Node
	names map[string]NodeID
	edges map[EdgeKey]*Edge
	adj   [][2][]EdgeKey

	// Kmer is the overlap between adjacent contigs
	Kmer int
}

func NewGraph(kmer int) *Graph {
	return &Graph{
		nodes: []*Node{nil},
		names: make(map[string]NodeID),
		edges: make(map[EdgeKey]*Edge),
		adj:   make([][2][]EdgeKey, 1),
		Kmer:  kmer,
	}
}

// AddNode appends a contig to the arena. Names must be unique.
func (g *Graph) AddNode(name string, seq []byte, cov float64) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.names[name]; ok {
		return NilNode, fmt.Errorf("[AddNode] duplicate node name %q", name)
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &Node{ID: id, Name: name, Seq: seq, Cov: cov})
	g.adj = append(g.adj, [2][]EdgeKey{})
	g.names[name] = id
	return id, nil
}

// node returns live and deleted nodes; callers hold the lock.
func (g *Graph) node(id NodeID) *Node {
	if id == NilNode || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) liveNode(id NodeID) *Node {
	n := g.node(id)
	if n == nil || n.GetDeleteFlag() > 0 {
		return nil
	}
	return n
}

// Node returns the node with id, or nil when it was never part of the graph.
// Deleted nodes are returned too; check GetDeleteFlag.
func (g *Graph) Node(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.node(id)
}

// NodeCopy returns a copy of a live node, safe to read while the graph
// changes.
func (g *Graph) NodeCopy(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := g.liveNode(id)
	if n == nil {
		return Node{}, false
	}
	return *n, true
}

func (g *Graph) Contains(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.liveNode(id) != nil
}

func (g *Graph) NodeByName(name string) (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.names[name]
	if !ok || g.nodes[id].GetDeleteFlag() > 0 {
		return NilNode, false
	}
	return id, true
}

func (g *Graph) NodeLen(id NodeID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := g.node(id); n != nil {
		return n.Len()
	}
	return 0
}

// Nodes lists the live nodes in ID order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes[1:] {
		if n.GetDeleteFlag() == 0 {
			arr = append(arr, n)
		}
	}
	return arr
}

func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, n := range g.nodes[1:] {
		if n.GetDeleteFlag() == 0 {
			count++
		}
	}
	return count
}

// Edges lists all edges sorted by key.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedEdges()
}

type EdgeArr []*Edge

func (arr EdgeArr) Len() int           { return len(arr) }
func (arr EdgeArr) Less(i, j int) bool { return arr[i].Key < arr[j].Key }
func (arr EdgeArr) Swap(i, j int)      { arr[i], arr[j] = arr[j], arr[i] }

func sortEdges(arr []*Edge) {
	sort.Sort(EdgeArr(arr))
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

func (g *Graph) Edge(key EdgeKey) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[key]
	return e, ok
}

// AddEdge joins end (a, da) with end (b, db). The stored edge is canonical:
// adding (b, db)-(a, da) afterwards finds the same edge and returns
// ErrEdgeExists together with it.
func (g *Graph) AddEdge(a NodeID, da bool, b NodeID, db bool, length int) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.newEdge(a, da, b, db, length, nil)
	if err != nil {
		return nil, err
	}
	if old, ok := g.edges[e.Key]; ok {
		return old, ErrEdgeExists
	}
	g.insertEdge(e)
	return e, nil
}

// AddPseudoEdge adds a gap edge of the given length carrying optional fill
// bases oriented from (a, da) towards (b, db).
func (g *Graph) AddPseudoEdge(a NodeID, da bool, b NodeID, db bool, length int, fill []byte) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.newEdge(a, da, b, db, length, nil)
	if err != nil {
		return nil, err
	}
	if old, ok := g.edges[e.Key]; ok {
		return old, ErrEdgeExists
	}
	e.Pseudo = true
	if len(fill) > 0 {
		if e.Source != a || e.SourceDir != da {
			fill = ReverseComplement(fill)
		}
		e.Fill = fill
	}
	g.insertEdge(e)
	return e, nil
}

// newEdge builds a canonical edge, the lock must be held.
func (g *Graph) newEdge(a NodeID, da bool, b NodeID, db bool, length int, path *Path) (*Edge, error) {
	na, nb := g.liveNode(a), g.liveNode(b)
	if na == nil || nb == nil {
		return nil, fmt.Errorf("[newEdge] %v-%v: %w", NodeEnd{a, da}, NodeEnd{b, db}, ErrNodeNotFound)
	}
	key, swap := CanonicalKey(na.Name, da, nb.Name, db)
	e := &Edge{Source: a, SourceDir: da, Target: b, TargetDir: db, Length: length, Path: path}
	if swap {
		e.Source, e.Target = b, a
		e.SourceDir, e.TargetDir = db, da
		if path != nil {
			e.Path = path.Reverse()
		}
	}
	if e.Path != nil {
		key = compositeKey(key, e.Path)
	}
	e.Key = key
	return e, nil
}

func insertSorted(arr []EdgeKey, k EdgeKey) []EdgeKey {
	i := sort.Search(len(arr), func(i int) bool { return arr[i] >= k })
	if i < len(arr) && arr[i] == k {
		return arr
	}
	arr = append(arr, "")
	copy(arr[i+1:], arr[i:])
	arr[i] = k
	return arr
}

func deleteKey(arr []EdgeKey, k EdgeKey) []EdgeKey {
	for i, v := range arr {
		if v == k {
			return append(arr[:i], arr[i+1:]...)
		}
	}
	return arr
}

func (g *Graph) insertEdge(e *Edge) {
	g.edges[e.Key] = e
	s := &g.adj[e.Source][endIdx(e.SourceDir)]
	*s = insertSorted(*s, e.Key)
	t := &g.adj[e.Target][endIdx(e.TargetDir)]
	*t = insertSorted(*t, e.Key)
}

func (g *Graph) RemoveEdge(key EdgeKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[key]; !ok {
		return fmt.Errorf("[RemoveEdge] %s: %w", key, ErrEdgeNotFound)
	}
	g.removeEdge(key)
	return nil
}

func (g *Graph) removeEdge(key EdgeKey) *Edge {
	e, ok := g.edges[key]
	if !ok {
		return nil
	}
	delete(g.edges, key)
	s := &g.adj[e.Source][endIdx(e.SourceDir)]
	*s = deleteKey(*s, key)
	t := &g.adj[e.Target][endIdx(e.TargetDir)]
	*t = deleteKey(*t, key)
	return e
}

// RemoveNode deletes a node together with every edge touching it, composite
// edges included. It returns the keys of the removed edges.
func (g *Graph) RemoveNode(id NodeID) ([]EdgeKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.liveNode(id) == nil {
		return nil, fmt.Errorf("[RemoveNode] %d: %w", id, ErrNodeNotFound)
	}
	return g.removeNode(id), nil
}

func (g *Graph) removeNode(id NodeID) (removed []EdgeKey) {
	for _, d := range [2]bool{IN, OUT} {
		keys := append([]EdgeKey(nil), g.adj[id][endIdx(d)]...)
		for _, k := range keys {
			if g.removeEdge(k) != nil {
				removed = append(removed, k)
			}
		}
	}
	n := g.nodes[id]
	n.SetDeleteFlag()
	delete(g.names, n.Name)
	return removed
}

// RenameNode changes a node name; keys of all incident edges are rebuilt.
func (g *Graph) RenameNode(id NodeID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.liveNode(id)
	if n == nil {
		return fmt.Errorf("[RenameNode] %d: %w", id, ErrNodeNotFound)
	}
	if _, ok := g.names[name]; ok {
		return fmt.Errorf("[RenameNode] name %q already used", name)
	}
	var incident []*Edge
	for _, d := range [2]bool{IN, OUT} {
		for _, k := range g.adj[id][endIdx(d)] {
			if e, ok := g.edges[k]; ok {
				incident = append(incident, e)
			}
		}
	}
	for _, e := range incident {
		g.removeEdge(e.Key)
	}
	delete(g.names, n.Name)
	n.Name = name
	g.names[name] = id
	for _, old := range incident {
		e, err := g.newEdge(old.Source, old.SourceDir, old.Target, old.TargetDir, old.Length, old.Path)
		if err != nil {
			return err
		}
		e.Pseudo, e.Fill = old.Pseudo, old.Fill
		if e.Source != old.Source || e.SourceDir != old.SourceDir {
			e.Fill = reverseFill(old.Fill)
		}
		g.insertEdge(e)
	}
	return nil
}

func (g *Graph) edgesAt(id NodeID, dir bool) []*Edge {
	if g.node(id) == nil {
		return nil
	}
	keys := g.adj[id][endIdx(dir)]
	arr := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		arr = append(arr, g.edges[k])
	}
	return arr
}

// EdgesAt returns the edges attached to end dir of node id, sorted by key.
// With dir OUT these are the edges leaving the forward contig, with IN the
// ones entering it.
func (g *Graph) EdgesAt(id NodeID, dir bool) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesAt(id, dir)
}

func (g *Graph) degree(id NodeID) int {
	if g.node(id) == nil {
		return 0
	}
	deg := 0
	for _, d := range [2]bool{IN, OUT} {
		for _, k := range g.adj[id][endIdx(d)] {
			deg++
			e := g.edges[k]
			// a loop joining one end to itself is listed once but uses the end twice
			if e.Source == e.Target && e.SourceDir == e.TargetDir {
				deg++
			}
		}
	}
	return deg
}

// Degree counts edge endpoints on the node, self-loops twice.
func (g *Graph) Degree(id NodeID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degree(id)
}

// InOutDegree splits Degree by node end.
func (g *Graph) InOutDegree(id NodeID) (in, out int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node(id) == nil {
		return 0, 0
	}
	count := func(d bool) (c int) {
		for _, k := range g.adj[id][endIdx(d)] {
			c++
			if e := g.edges[k]; e.Source == e.Target && e.SourceDir == e.TargetDir {
				c++
			}
		}
		return c
	}
	return count(IN), count(OUT)
}

func (g *Graph) HasSelfLoop(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node(id) == nil {
		return false
	}
	for _, d := range [2]bool{IN, OUT} {
		for _, k := range g.adj[id][endIdx(d)] {
			if e := g.edges[k]; e.Source == e.Target {
				return true
			}
		}
	}
	return false
}

// SetCoverage updates a node coverage estimate.
func (g *Graph) SetCoverage(id NodeID, cov float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.liveNode(id); n != nil {
		n.Cov = cov
	}
}

// Walk returns the end reached by crossing edge key from end from.
func (g *Graph) Walk(key EdgeKey, from NodeEnd) (NodeEnd, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[key]
	if !ok {
		return NodeEnd{}, false
	}
	return e.Other(from)
}

// View is a read-only handle valid inside Snapshot.
type View struct {
	g *Graph
}

func (v View) Components() [][]NodeID { return v.g.components() }
func (v View) Contigs() []Contig       { return v.g.contigs() }
func (v View) Stats() Stats            { return v.g.stats() }
func (v View) Node(id NodeID) *Node    { return v.g.node(id) }
func (v View) Degree(id NodeID) int    { return v.g.degree(id) }

// Snapshot runs fn under the read lock so every query fn makes sees the same
// graph. fn must only use the View.
func (g *Graph) Snapshot(fn func(v View)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(View{g})
}
