package deconstructbdg

import (
	"bufio"
	"fmt"
	"io"

	"npgraph/bdgraph"
	"npgraph/binner"
)

// WriteBins writes one line per live node: name, length, coverage, unique
// bin (-1 if none) and the bin multiplicities.
func WriteBins(w io.Writer, g *bdgraph.Graph, bn *binner.Binner) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#name\tlength\tcoverage\tunique\tbins\n")
	for _, n := range g.Nodes() {
		unique := -1
		if b := bn.UniqueBin(n.ID); b != nil {
			unique = b.ID
		}
		bins := bn.NodeBins(n.ID)
		if bins == nil {
			bins = binner.BinMap{}
		}
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%.2f\t%d\t%v\n", n.Name, n.Len(), n.Cov, unique, bins); err != nil {
			return err
		}
	}
	return bw.Flush()
}
