package deconstructbdg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"npgraph/bdgraph"
	"npgraph/scaffold"
)

// PAFRecord holds the twelve mandatory columns of a PAF line plus the
// alignment type tag. Coordinates are 0-based half open.
type PAFRecord struct {
	Query          string
	QueryLength    int
	QueryStart     int
	QueryEnd       int
	RelativeStrand byte
	Target         string
	TargetLength   int
	TargetStart    int
	TargetEnd      int
	NumMatches     int
	AlnLength      int
	MapQ           int
	Primary        bool
}

var errPAFLine = errors.New("bad PAF line")

func parsePAF(line string) (rec PAFRecord, err error) {
	words := strings.Split(line, "\t")
	if len(words) < 12 || len(words[4]) != 1 {
		return rec, errPAFLine
	}
	ints := make([]int, 0, 9)
	for _, i := range []int{1, 2, 3, 6, 7, 8, 9, 10, 11} {
		v, err := strconv.Atoi(words[i])
		if err != nil {
			return rec, fmt.Errorf("column %d %q: %w", i+1, words[i], errPAFLine)
		}
		ints = append(ints, v)
	}
	rec = PAFRecord{
		Query:          words[0],
		QueryLength:    ints[0],
		QueryStart:     ints[1],
		QueryEnd:       ints[2],
		RelativeStrand: words[4][0],
		Target:         words[5],
		TargetLength:   ints[3],
		TargetStart:    ints[4],
		TargetEnd:      ints[5],
		NumMatches:     ints[6],
		AlnLength:      ints[7],
		MapQ:           ints[8],
		Primary:        true,
	}
	if rec.RelativeStrand != '+' && rec.RelativeStrand != '-' {
		return rec, fmt.Errorf("strand %q: %w", words[4], errPAFLine)
	}
	if rec.QueryStart >= rec.QueryEnd || rec.TargetStart >= rec.TargetEnd {
		return rec, fmt.Errorf("empty interval: %w", errPAFLine)
	}
	for _, tag := range words[12:] {
		// tp:A:S marks a secondary alignment
		if strings.HasPrefix(tag, "tp:A:") {
			rec.Primary = tag[5:] == "P" || tag[5:] == "I" || tag[5:] == "i"
		}
	}
	return rec, nil
}

// Alignment converts the record; the query is the read, the target a
// contig of g.
func (rec PAFRecord) Alignment(g *bdgraph.Graph) (*scaffold.Alignment, error) {
	id, ok := g.NodeByName(rec.Target)
	if !ok {
		return nil, fmt.Errorf("contig %s: %w", rec.Target, bdgraph.ErrNodeNotFound)
	}
	forward := rec.RelativeStrand == '+'
	a := &scaffold.Alignment{
		ReadName: rec.Query,
		Node:     id,
		NodeLen:  g.NodeLen(id),
		RefStart: rec.TargetStart + 1,
		RefEnd:   rec.TargetEnd,
		ReadLen:  rec.QueryLength,
		Strand:   forward,
		Primary:  rec.Primary,
		MapQ:     rec.MapQ,
		AlnLen:   rec.NumMatches,
	}
	// PAF query coordinates are always on the forward read
	if forward {
		a.ReadStart, a.ReadEnd = rec.QueryStart+1, rec.QueryEnd
	} else {
		a.ReadStart, a.ReadEnd = rec.QueryEnd, rec.QueryStart+1
	}
	return a, nil
}

// PAFFeed sends the reads of a PAF stream, grouped by query name in stream
// order. seqs, when given, supplies the read bases.
func PAFFeed(r io.Reader, g *bdgraph.Graph, seqs map[string][]byte) Feed {
	return func(ctx context.Context, out chan<- *scaffold.AlignedRead) error {
		gr := &grouper{out: out, seqs: seqs}
		reader := bufio.NewReader(r)
		lineNo := 0
		for {
			row, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("[PAFFeed] line %d: %w", lineNo+1, err)
			}
			lineNo++
			row = strings.TrimSpace(row)
			if row != "" {
				if e := addPAF(ctx, gr, g, row); e != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Debugf("[PAFFeed] line %d: %v", lineNo, e)
					gr.skipped++
				}
			}
			if err == io.EOF {
				break
			}
		}
		if err := gr.flush(ctx); err != nil {
			return err
		}
		log.Infof("[PAFFeed] %d reads sent, %d lines skipped", gr.reads, gr.skipped)
		return nil
	}
}

func addPAF(ctx context.Context, gr *grouper, g *bdgraph.Graph, row string) error {
	rec, err := parsePAF(row)
	if err != nil {
		return err
	}
	a, err := rec.Alignment(g)
	if err != nil {
		return err
	}
	return gr.add(ctx, rec.Query, a, nil)
}
