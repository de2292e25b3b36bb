package deconstructbdg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"

	"npgraph/bdgraph"
	"npgraph/utils"
)

// LoadReads reads a FASTA/FASTQ file of long reads, keyed by the first word
// of each name.
func LoadReads(fn string) (map[string][]byte, error) {
	reader, err := fastx.NewDefaultReader(fn)
	if err != nil {
		return nil, fmt.Errorf("[LoadReads] open %s: %w", fn, err)
	}
	seq.ValidateSeq = false
	reads := make(map[string][]byte)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("[LoadReads] %s: %w", fn, err)
		}
		fields := strings.Fields(string(rec.Name))
		if len(fields) == 0 {
			continue
		}
		reads[fields[0]] = bytes.ToUpper(rec.Seq.Seq)
	}
	log.Infof("[LoadReads] %d reads from %s", len(reads), fn)
	return reads, nil
}

// WriteNodes stores every live node under its own name, the reference the
// reads are aligned against.
func WriteNodes(g *bdgraph.Graph, fn string) error {
	fp, err := utils.CreateWriter(fn)
	if err != nil {
		return err
	}
	fw := fasta.NewWriter(fp, 80)
	for _, n := range g.Nodes() {
		s := linear.NewSeq(n.Name, alphabet.BytesToLetters(n.Seq), alphabet.DNAredundant)
		if _, err := fw.Write(s); err != nil {
			fp.Close()
			return fmt.Errorf("[WriteNodes] %s: %w", n.Name, err)
		}
	}
	return fp.Close()
}

// Aligner runs an external long read mapper writing SAM to stdout, by
// default "minimap2 <args> <ref> <reads>".
type Aligner struct {
	Cmd  string
	Args []string
}

// Start launches the mapper. The returned wait must be called once the
// output has been consumed.
func (al Aligner) Start(ctx context.Context, ref, reads string) (io.Reader, func() error, error) {
	args := append(append([]string(nil), al.Args...), ref, reads)
	cmd := exec.CommandContext(ctx, al.Cmd, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	log.Noticef("[Aligner] %s %s", al.Cmd, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("[Aligner] start %s: %w", al.Cmd, err)
	}
	wait := func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("[Aligner] %s: %w: %s", al.Cmd, err, lastLine(stderr.String()))
		}
		return nil
	}
	return out, wait, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Spoa builds a consensus with the spoa partial order aligner, run once per
// gap on a temporary FASTA of the spanning read pieces.
type Spoa struct {
	Cmd string
	Dir string
}

var ErrNoSequence = errors.New("no sequence to build a consensus from")

func (s Spoa) Consensus(ctx context.Context, seqs [][]byte) ([]byte, error) {
	switch len(seqs) {
	case 0:
		return nil, ErrNoSequence
	case 1:
		return seqs[0], nil
	}
	fp, err := os.CreateTemp(s.Dir, "npgraph-gap-*.fa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(fp.Name())
	fw := fasta.NewWriter(fp, 80)
	for i, sq := range seqs {
		ls := linear.NewSeq(fmt.Sprintf("s%d", i), alphabet.BytesToLetters(sq), alphabet.DNAredundant)
		if _, err := fw.Write(ls); err != nil {
			fp.Close()
			return nil, err
		}
	}
	if err := fp.Close(); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Cmd, fp.Name(), "-r", "0")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("[Consensus] %s: %w: %s", s.Cmd, err, lastLine(stderr.String()))
	}
	return parseConsensus(out)
}

// parseConsensus takes the first FASTA record of the consensus output.
func parseConsensus(out []byte) ([]byte, error) {
	fr := fasta.NewReader(bytes.NewReader(out), linear.NewSeq("", nil, alphabet.DNAredundant))
	sq, err := fr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoSequence
		}
		return nil, err
	}
	ls := sq.(*linear.Seq)
	cons := make([]byte, len(ls.Seq))
	for i, l := range ls.Seq {
		cons[i] = byte(l)
	}
	if len(cons) == 0 {
		return nil, ErrNoSequence
	}
	return bytes.ToUpper(cons), nil
}
