package constructbdg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"npgraph/bdgraph"
)

// fastgName is one oriented EDGE_<id>_length_<l>_cov_<c>['] token.
type fastgName struct {
	id      string
	length  int
	cov     float64
	reverse bool
}

func parseFastgName(tok string) (fastgName, error) {
	var n fastgName
	if strings.HasSuffix(tok, "'") {
		n.reverse = true
		tok = tok[:len(tok)-1]
	}
	f := strings.Split(tok, "_")
	if len(f) < 6 || f[0] != "EDGE" || f[2] != "length" || f[4] != "cov" {
		return n, fmt.Errorf("fastg name %q: %w", tok, ErrMalformedRecord)
	}
	var err error
	n.id = f[1]
	if n.length, err = strconv.Atoi(f[3]); err != nil {
		return n, fmt.Errorf("fastg name %q: %w", tok, ErrMalformedRecord)
	}
	if n.cov, err = strconv.ParseFloat(f[5], 64); err != nil {
		return n, fmt.Errorf("fastg name %q: %w", tok, ErrMalformedRecord)
	}
	return n, nil
}

type fastgRecord struct {
	self fastgName
	next []fastgName
	seq  []byte
}

// parseFastgHeader splits ">A:B,C';" into the record and its successors.
func parseFastgHeader(h string) (fastgRecord, error) {
	var rec fastgRecord
	h = strings.TrimSuffix(strings.TrimSpace(h[1:]), ";")
	head, tail, hasNext := strings.Cut(h, ":")
	var err error
	if rec.self, err = parseFastgName(head); err != nil {
		return rec, err
	}
	if !hasNext || tail == "" {
		return rec, nil
	}
	for _, tok := range strings.Split(tail, ",") {
		n, err := parseFastgName(tok)
		if err != nil {
			return rec, err
		}
		rec.next = append(rec.next, n)
	}
	return rec, nil
}

// LoadFASTG reads a SPAdes FASTG graph. Each edge is given once forward and
// once reverse complemented (name ending in '); nodes are named by the edge
// id and built from the forward record. Adjacent sequences overlap by kmer
// bases; with kmer 0 it is the shortest sequence length minus one.
func LoadFASTG(r io.Reader, kmer int) (*bdgraph.Graph, error) {
	var recs []*fastgRecord
	var cur *fastgRecord
	skipped := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<30)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			rec, err := parseFastgHeader(line)
			if err != nil {
				log.Warningf("[LoadFASTG] line %d: %v", lineNo, err)
				skipped++
				cur = nil
				continue
			}
			cur = &rec
			recs = append(recs, cur)
			continue
		}
		if cur != nil {
			cur.seq = append(cur.seq, strings.ToUpper(line)...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("[LoadFASTG] line %d: %w", lineNo, err)
	}

	if kmer == 0 {
		for _, rec := range recs {
			if l := len(rec.seq) - 1; l > 0 && (kmer == 0 || l < kmer) {
				kmer = l
			}
		}
	}
	g := bdgraph.NewGraph(kmer)
	var segs []segRecord
	seen := make(map[string]bool)
	for _, rec := range recs {
		if seen[rec.self.id] {
			continue
		}
		seq := rec.seq
		if rec.self.reverse {
			seq = bdgraph.ReverseComplement(seq)
		}
		if rec.self.length > 0 && rec.self.length != len(seq) {
			log.Warningf("[LoadFASTG] EDGE_%s: header length %d, %d bases", rec.self.id, rec.self.length, len(seq))
		}
		seen[rec.self.id] = true
		segs = append(segs, segRecord{name: rec.self.id, seq: seq, cov: rec.self.cov})
	}
	skipped += addSegments(g, segs)
	for _, rec := range recs {
		// A leaves through its 3' end, A' through its 5' end
		leave := !rec.self.reverse
		for _, n := range rec.next {
			if err := addLink(g, rec.self.id, leave, n.id, n.reverse, -kmer); err != nil {
				log.Warningf("[LoadFASTG] EDGE_%s-EDGE_%s: %v", rec.self.id, n.id, err)
				skipped++
			}
		}
	}
	log.Noticef("[LoadFASTG] %d edges as nodes, %d links, kmer %d, %d records skipped", g.NodeCount(), g.EdgeCount(), kmer, skipped)
	return g, nil
}
