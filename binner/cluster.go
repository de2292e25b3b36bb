package binner

import (
	"math"
	"sort"

	"npgraph/bdgraph"
)

type covPoint struct {
	node *bdgraph.Node
	x    float64
	deg  int
}

type covPointArr []covPoint

func (arr covPointArr) Len() int { return len(arr) }
func (arr covPointArr) Less(i, j int) bool {
	if arr[i].x == arr[j].x {
		return arr[i].node.ID < arr[j].node.ID
	}
	return arr[i].x < arr[j].x
}
func (arr covPointArr) Swap(i, j int) { arr[i], arr[j] = arr[j], arr[i] }

const (
	unvisited = -2
	noise     = -1
)

// dbscan clusters sorted 1-D points; a point counts itself as a neighbour.
// Noise points get no cluster.
func dbscan(pts covPointArr, eps float64, minPts int) (clusters [][]int) {
	neighbours := func(i int) []int {
		lo := sort.Search(len(pts), func(j int) bool { return pts[j].x >= pts[i].x-eps })
		var nb []int
		for j := lo; j < len(pts) && pts[j].x <= pts[i].x+eps; j++ {
			nb = append(nb, j)
		}
		return nb
	}
	label := make([]int, len(pts))
	for i := range label {
		label[i] = unvisited
	}
	c := -1
	for i := range pts {
		if label[i] != unvisited {
			continue
		}
		nb := neighbours(i)
		if len(nb) < minPts {
			label[i] = noise
			continue
		}
		c++
		label[i] = c
		seeds := append([]int(nil), nb...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if label[j] == noise {
				label[j] = c
			}
			if label[j] != unvisited {
				continue
			}
			label[j] = c
			if nbj := neighbours(j); len(nbj) >= minPts {
				seeds = append(seeds, nbj...)
			}
		}
	}
	clusters = make([][]int, c+1)
	for i, l := range label {
		if l >= 0 {
			clusters[l] = append(clusters[l], i)
		}
	}
	return clusters
}

// clusterBins turns the coverage clusters of long contigs into bins. A
// cluster is kept when most of its length sits on contigs of degree <= 2,
// and only those contigs join the bin.
func (bn *Binner) clusterBins() []*PopBin {
	var pts covPointArr
	for _, n := range bn.g.Nodes() {
		if n.Len() < bn.cfg.MinSignificantLength || n.Cov <= 0 {
			continue
		}
		pts = append(pts, covPoint{node: n, x: math.Log(n.Cov), deg: bn.g.Degree(n.ID)})
	}
	sort.Sort(pts)
	var bins []*PopBin
	for _, cl := range dbscan(pts, bn.cfg.DBSCANEps, bn.cfg.DBSCANMinPts) {
		total, low := 0, 0
		for _, i := range cl {
			total += pts[i].node.Len()
			if pts[i].deg <= 2 {
				low += pts[i].node.Len()
			}
		}
		if 2*low <= total {
			log.Debugf("[clusterBins] cluster of %d contigs dropped, %d/%d bp on branching contigs", len(cl), total-low, total)
			continue
		}
		b := NewPopBin(len(bins))
		for _, i := range cl {
			if pts[i].deg <= 2 {
				b.Add(pts[i].node)
			}
		}
		bins = append(bins, b)
	}
	return bn.mergeClose(bins)
}

// mergeClose joins bins whose coverages are within tolerance, bins are
// renumbered by increasing coverage.
func (bn *Binner) mergeClose(bins []*PopBin) []*PopBin {
	sort.SliceStable(bins, func(i, j int) bool { return bins[i].Coverage() < bins[j].Coverage() })
	var merged []*PopBin
	for _, b := range bins {
		if len(merged) > 0 && merged[len(merged)-1].IsClose(b, bn.cfg) {
			merged[len(merged)-1].merge(b)
			continue
		}
		merged = append(merged, b)
	}
	for i, b := range merged {
		b.ID = i
	}
	return merged
}
