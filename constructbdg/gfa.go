package constructbdg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"npgraph/bdgraph"
)

type segRecord struct {
	name string
	seq  []byte
	cov  float64
}

type linkRecord struct {
	a, b           string
	leaveA, enterB bool
	overlap        int
}

// cigarOverlap is the number of bases a link CIGAR spends on the first
// segment; "*" counts as no overlap.
func cigarOverlap(cigar string) (int, error) {
	if cigar == "*" || cigar == "" {
		return 0, nil
	}
	n, total := 0, 0
	digits := false
	for i := 0; i < len(cigar); i++ {
		c := cigar[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			digits = true
			continue
		}
		if !digits {
			return 0, fmt.Errorf("cigar %q: %w", cigar, ErrMalformedRecord)
		}
		switch c {
		case 'M', '=', 'X', 'D', 'N':
			total += n
		case 'I', 'S', 'H', 'P':
		default:
			return 0, fmt.Errorf("cigar %q: %w", cigar, ErrMalformedRecord)
		}
		n, digits = 0, false
	}
	if digits {
		return 0, fmt.Errorf("cigar %q: %w", cigar, ErrMalformedRecord)
	}
	return total, nil
}

func parseSign(s string) (bool, error) {
	switch s {
	case "+":
		return true, nil
	case "-":
		return false, nil
	}
	return false, fmt.Errorf("orientation %q: %w", s, ErrMalformedRecord)
}

// parseSegment reads an S line. Coverage comes from DP:f as is, or from one
// of the count tags KC, RC, FC divided by the segment length.
func parseSegment(fields []string) (segRecord, error) {
	var rec segRecord
	if len(fields) < 3 || fields[1] == "" {
		return rec, fmt.Errorf("S line with %d fields: %w", len(fields), ErrMalformedRecord)
	}
	rec.name = fields[1]
	length := -1
	if fields[2] != "*" {
		rec.seq = []byte(strings.ToUpper(fields[2]))
		length = len(rec.seq)
	}
	var count float64
	haveCount, haveDP := false, false
	for _, tag := range fields[3:] {
		parts := strings.SplitN(tag, ":", 3)
		if len(parts) != 3 {
			return rec, fmt.Errorf("segment %s tag %q: %w", rec.name, tag, ErrMalformedRecord)
		}
		switch parts[0] {
		case "LN":
			l, err := strconv.Atoi(parts[2])
			if err != nil || l < 0 {
				return rec, fmt.Errorf("segment %s length %q: %w", rec.name, parts[2], ErrMalformedRecord)
			}
			if length >= 0 && l != length {
				return rec, fmt.Errorf("segment %s LN:%d but %d bases: %w", rec.name, l, length, ErrMalformedRecord)
			}
			length = l
		case "KC", "RC", "FC":
			v, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return rec, fmt.Errorf("segment %s tag %q: %w", rec.name, tag, ErrMalformedRecord)
			}
			if !haveCount {
				count, haveCount = v, true
			}
		case "DP":
			v, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return rec, fmt.Errorf("segment %s tag %q: %w", rec.name, tag, ErrMalformedRecord)
			}
			rec.cov, haveDP = v, true
		}
	}
	if length < 0 {
		return rec, fmt.Errorf("segment %s without sequence or LN: %w", rec.name, ErrMalformedRecord)
	}
	if rec.seq == nil {
		rec.seq = bytes.Repeat([]byte("N"), length)
	}
	if !haveDP && haveCount && length > 0 {
		rec.cov = count / float64(length)
	}
	return rec, nil
}

func parseLink(fields []string) (linkRecord, error) {
	var rec linkRecord
	if len(fields) < 6 {
		return rec, fmt.Errorf("L line with %d fields: %w", len(fields), ErrMalformedRecord)
	}
	var err error
	rec.a, rec.b = fields[1], fields[3]
	if rec.leaveA, err = parseSign(fields[2]); err != nil {
		return rec, err
	}
	fwdB, err := parseSign(fields[4])
	if err != nil {
		return rec, err
	}
	rec.enterB = !fwdB
	rec.overlap, err = cigarOverlap(fields[5])
	return rec, err
}

// LoadGFA reads GFA1 segments and links. Path lines are ignored. With kmer
// 0 the overlap size is the shortest non zero link overlap.
func LoadGFA(r io.Reader, kmer int) (*bdgraph.Graph, error) {
	var segs []segRecord
	var links []linkRecord
	skipped, paths := 0, 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<30)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		switch fields[0] {
		case "S":
			rec, err := parseSegment(fields)
			if err != nil {
				log.Warningf("[LoadGFA] line %d: %v", lineNo, err)
				skipped++
				continue
			}
			segs = append(segs, rec)
		case "L":
			rec, err := parseLink(fields)
			if err != nil {
				log.Warningf("[LoadGFA] line %d: %v", lineNo, err)
				skipped++
				continue
			}
			links = append(links, rec)
		case "P":
			paths++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("[LoadGFA] line %d: %w", lineNo, err)
	}
	if paths > 0 {
		log.Warningf("[LoadGFA] %d path lines ignored", paths)
	}
	g := bdgraph.NewGraph(kmer)
	skipped += addSegments(g, segs)
	shortest := 0
	for _, l := range links {
		if err := addLink(g, l.a, l.leaveA, l.b, l.enterB, -l.overlap); err != nil {
			log.Warningf("[LoadGFA] link %s-%s: %v", l.a, l.b, err)
			skipped++
			continue
		}
		if l.overlap > 0 && (shortest == 0 || l.overlap < shortest) {
			shortest = l.overlap
		}
	}
	if kmer == 0 {
		g.Kmer = shortest
	}
	log.Noticef("[LoadGFA] %d segments, %d links, kmer %d, %d records skipped", g.NodeCount(), g.EdgeCount(), g.Kmer, skipped)
	return g, nil
}

func addSegments(g *bdgraph.Graph, segs []segRecord) (skipped int) {
	for _, s := range segs {
		if _, err := g.AddNode(s.name, s.seq, s.cov); err != nil {
			log.Warningf("[addSegments] %s: %v", s.name, err)
			skipped++
		}
	}
	return skipped
}

// addLink joins two named ends; a link given from both sides is kept once.
func addLink(g *bdgraph.Graph, a string, leaveA bool, b string, enterB bool, length int) error {
	ia, ok := g.NodeByName(a)
	if !ok {
		return fmt.Errorf("segment %s: %w", a, bdgraph.ErrNodeNotFound)
	}
	ib, ok := g.NodeByName(b)
	if !ok {
		return fmt.Errorf("segment %s: %w", b, bdgraph.ErrNodeNotFound)
	}
	if _, err := g.AddEdge(ia, leaveA, ib, enterB, length); err != nil && !errors.Is(err, bdgraph.ErrEdgeExists) {
		return err
	}
	return nil
}
