package deconstructbdg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"npgraph/bdgraph"
	"npgraph/scaffold"
	"npgraph/utils"
)

// samSource is satisfied by both sam.Reader and bam.Reader.
type samSource interface {
	Read() (*sam.Record, error)
}

// ErrBadRecord marks a SAM line that does not parse. The reader can go on
// with the next line.
var ErrBadRecord = errors.New("malformed SAM record")

// ioWatch remembers the first error of the stream under a SAM text reader,
// telling read failures from lines that do not parse.
type ioWatch struct {
	r   io.Reader
	err error
}

func (w *ioWatch) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if err != nil && err != io.EOF && w.err == nil {
		w.err = err
	}
	return n, err
}

type SAMReader struct {
	src     samSource
	text    *ioWatch // nil for BAM
	closers []io.Closer
}

// Read returns the next record. A SAM text line that does not parse gives
// an error wrapping ErrBadRecord.
func (r *SAMReader) Read() (*sam.Record, error) {
	rec, err := r.src.Read()
	if err != nil && r.text != nil && r.text.err == nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return rec, err
}

func (r *SAMReader) Close() (err error) {
	for _, c := range r.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// OpenSAM opens a SAM or, by its .bam suffix, a BAM file. threads is the
// number of BGZF decompression goroutines.
func OpenSAM(fn string, threads int) (*SAMReader, error) {
	if strings.HasSuffix(fn, ".bam") {
		fp, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		br, err := bam.NewReader(fp, threads)
		if err != nil {
			fp.Close()
			return nil, fmt.Errorf("[OpenSAM] %s: %w", fn, err)
		}
		return &SAMReader{src: br, closers: []io.Closer{br, fp}}, nil
	}
	fp, err := utils.OpenReader(fn)
	if err != nil {
		return nil, err
	}
	w := &ioWatch{r: fp}
	sr, err := sam.NewReader(w)
	if err != nil {
		fp.Close()
		return nil, fmt.Errorf("[OpenSAM] %s: %w", fn, err)
	}
	return &SAMReader{src: sr, text: w, closers: []io.Closer{fp}}, nil
}

// newSAMReader reads SAM text from a stream, as written by a mapper.
func newSAMReader(r io.Reader) (*SAMReader, error) {
	w := &ioWatch{r: r}
	sr, err := sam.NewReader(w)
	if err != nil {
		return nil, fmt.Errorf("[newSAMReader] %w", err)
	}
	return &SAMReader{src: sr, text: w}, nil
}

// cigarSpan walks a CIGAR: lead is the clipped length before the first
// aligned base, qlen the aligned read bases and total the whole read
// length including clips.
func cigarSpan(cigar sam.Cigar) (lead, qlen, match, total int) {
	aligned := false
	for _, co := range cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarSoftClipped, sam.CigarHardClipped:
			if !aligned {
				lead += n
			}
			total += n
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			aligned = true
			qlen += n
			match += n
			total += n
		case sam.CigarInsertion:
			aligned = true
			qlen += n
			total += n
		case sam.CigarDeletion, sam.CigarSkipped:
			aligned = true
		}
	}
	return
}

// readCoords converts a query interval, counted on the strand the
// alignment reports, to ReadStart and ReadEnd on the forward read.
func readCoords(lead, qlen, readLen int, forward bool) (start, end int) {
	if forward {
		return lead + 1, lead + qlen
	}
	return readLen - lead, readLen - lead - qlen + 1
}

// convertRecord turns a mapped record into an alignment. The read
// sequence is returned forward when the record carries all of it.
func convertRecord(r *sam.Record, g *bdgraph.Graph) (a *scaffold.Alignment, seq []byte, err error) {
	id, ok := g.NodeByName(r.Ref.Name())
	if !ok {
		return nil, nil, fmt.Errorf("contig %s: %w", r.Ref.Name(), bdgraph.ErrNodeNotFound)
	}
	lead, qlen, match, total := cigarSpan(r.Cigar)
	forward := r.Flags&sam.Reverse == 0
	a = &scaffold.Alignment{
		ReadName: r.Name,
		Node:     id,
		NodeLen:  g.NodeLen(id),
		RefStart: r.Pos + 1,
		RefEnd:   r.End(),
		ReadLen:  total,
		Strand:   forward,
		Primary:  r.Flags&sam.Secondary == 0,
		MapQ:     int(r.MapQ),
		AlnLen:   match,
	}
	a.ReadStart, a.ReadEnd = readCoords(lead, qlen, total, forward)
	if r.Seq.Length == total && total > 0 {
		seq = r.Seq.Expand()
		if !forward {
			seq = bdgraph.ReverseComplement(seq)
		}
	}
	return a, seq, nil
}

// grouper collects consecutive alignments of the same read.
type grouper struct {
	out     chan<- *scaffold.AlignedRead
	seqs    map[string][]byte
	cur     *scaffold.AlignedRead
	reads   int
	skipped int
}

func (gr *grouper) add(ctx context.Context, name string, a *scaffold.Alignment, seq []byte) error {
	if gr.cur != nil && gr.cur.Name != name {
		if err := gr.flush(ctx); err != nil {
			return err
		}
	}
	if gr.cur == nil {
		gr.cur = &scaffold.AlignedRead{Name: name, ReadLen: a.ReadLen}
	}
	gr.cur.Append(a)
	if gr.cur.Seq == nil && len(seq) == gr.cur.ReadLen {
		gr.cur.Seq = seq
	}
	return nil
}

func (gr *grouper) flush(ctx context.Context) error {
	r := gr.cur
	gr.cur = nil
	if r == nil {
		return nil
	}
	if r.Seq == nil && gr.seqs != nil {
		if s := gr.seqs[r.Name]; len(s) == r.ReadLen {
			r.Seq = s
		}
	}
	select {
	case gr.out <- r:
		gr.reads++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SAMFeed sends the reads of src, grouped by name in stream order, on out.
// Unmapped records, records on unknown contigs and lines that do not parse
// are skipped.
func SAMFeed(src samSource, g *bdgraph.Graph) Feed {
	return func(ctx context.Context, out chan<- *scaffold.AlignedRead) error {
		gr := &grouper{out: out}
		for {
			r, err := src.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrBadRecord) {
				log.Warningf("[SAMFeed] %v", err)
				gr.skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("[SAMFeed] %w", err)
			}
			if r.Flags&sam.Unmapped != 0 || r.Ref == nil {
				continue
			}
			a, seq, err := convertRecord(r, g)
			if err != nil {
				log.Debugf("[SAMFeed] %s: %v", r.Name, err)
				gr.skipped++
				continue
			}
			if err := gr.add(ctx, r.Name, a, seq); err != nil {
				return err
			}
		}
		if err := gr.flush(ctx); err != nil {
			return err
		}
		log.Infof("[SAMFeed] %d reads sent, %d alignments skipped", gr.reads, gr.skipped)
		return nil
	}
}
