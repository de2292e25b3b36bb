package deconstructbdg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"npgraph/bdgraph"
	"npgraph/binner"
	"npgraph/config"
	"npgraph/scaffold"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBSCANMinPts = 2
	cfg.WatchInterval = 0
	return cfg
}

// abc is A(2000) -> B(500) -> C(2000), B twice as deep as A and C.
func abc(t *testing.T) *bdgraph.Graph {
	t.Helper()
	g := bdgraph.NewGraph(0)
	var ids []bdgraph.NodeID
	for _, n := range []struct {
		name string
		len  int
		cov  float64
	}{{"A", 2000, 30}, {"B", 500, 60}, {"C", 2000, 30}} {
		id, err := g.AddNode(n.name, bytes.Repeat([]byte("A"), n.len), n.cov)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i+1 < len(ids); i++ {
		_, err := g.AddEdge(ids[i], bdgraph.OUT, ids[i+1], bdgraph.IN, 0)
		require.NoError(t, err)
	}
	return g
}

const samHeader = "@HD\tVN:1.6\n" +
	"@SQ\tSN:A\tLN:2000\n" +
	"@SQ\tSN:B\tLN:500\n" +
	"@SQ\tSN:C\tLN:2000\n" +
	"@SQ\tSN:Z\tLN:100\n"

// r1 runs through A, B and C; r2 is A reverse complemented behind 300
// clipped bases.
const testSAM = samHeader +
	"r1\t0\tA\t1\t60\t2000M2500S\t*\t0\t0\t*\t*\n" +
	"r1\t2048\tB\t1\t60\t2000H500M2000H\t*\t0\t0\t*\t*\n" +
	"r1\t2048\tC\t1\t60\t2500H2000M\t*\t0\t0\t*\t*\n" +
	"r1\t256\tZ\t1\t0\t2000S100M2400S\t*\t0\t0\t*\t*\n" +
	"u1\t4\t*\t0\t0\t*\t*\t0\t0\t*\t*\n" +
	"r2\t16\tA\t1\t60\t300S2000M\t*\t0\t0\t*\t*\n" +
	"r3\t16\tB\t1\t60\t4M\t*\t0\t0\tACGG\t*\n"

const testPAF = "r1\t4500\t0\t2000\t+\tA\t2000\t0\t2000\t2000\t2000\t60\ttp:A:P\n" +
	"r1\t4500\t2000\t2500\t+\tB\t500\t0\t500\t500\t500\t60\ttp:A:P\n" +
	"r1\t4500\t2500\t4500\t+\tC\t2000\t0\t2000\t2000\t2000\t60\n" +
	"r1\t4500\t2000\t2100\t+\tZ\t100\t0\t100\t100\t100\t0\ttp:A:S\n" +
	"broken line\n" +
	"r2\t2300\t0\t2000\t-\tA\t2000\t0\t2000\t2000\t2000\t60\ttp:A:P\n" +
	"r2\t2300\t0\t100\t-\tB\t500\t0\t100\t90\t100\t7\ttp:A:S\n"

func collect(t *testing.T, feed Feed) []*scaffold.AlignedRead {
	t.Helper()
	out := make(chan *scaffold.AlignedRead, 16)
	require.NoError(t, feed(context.Background(), out))
	close(out)
	var reads []*scaffold.AlignedRead
	for r := range out {
		reads = append(reads, r)
	}
	return reads
}

func TestReadCoords(t *testing.T) {
	s, e := readCoords(300, 2000, 2300, true)
	assert.Equal(t, [2]int{301, 2300}, [2]int{s, e})
	s, e = readCoords(300, 2000, 2300, false)
	assert.Equal(t, [2]int{2000, 1}, [2]int{s, e})
}

func TestCigarSpan(t *testing.T) {
	cigar := sam.Cigar{
		sam.NewCigarOp(sam.CigarHardClipped, 10),
		sam.NewCigarOp(sam.CigarSoftClipped, 5),
		sam.NewCigarOp(sam.CigarMatch, 100),
		sam.NewCigarOp(sam.CigarInsertion, 3),
		sam.NewCigarOp(sam.CigarDeletion, 7),
		sam.NewCigarOp(sam.CigarEqual, 20),
		sam.NewCigarOp(sam.CigarSoftClipped, 8),
	}
	lead, qlen, match, total := cigarSpan(cigar)
	assert.Equal(t, 15, lead)
	assert.Equal(t, 123, qlen)
	assert.Equal(t, 120, match)
	assert.Equal(t, 146, total)
}

func TestSAMFeed(t *testing.T) {
	g := abc(t)
	sr, err := newSAMReader(strings.NewReader(testSAM))
	require.NoError(t, err)
	reads := collect(t, SAMFeed(sr, g))
	require.Len(t, reads, 3)

	r1 := reads[0]
	assert.Equal(t, "r1", r1.Name)
	assert.Equal(t, 4500, r1.ReadLen)
	require.Len(t, r1.Alignments, 3)
	b := r1.Alignments[1]
	assert.Equal(t, 2001, b.ReadStart)
	assert.Equal(t, 2500, b.ReadEnd)
	assert.Equal(t, 1, b.RefStart)
	assert.Equal(t, 500, b.RefEnd)
	assert.Equal(t, 500, b.NodeLen)
	assert.True(t, b.Primary)
	assert.True(t, b.Strand)
	assert.Equal(t, 60, b.MapQ)
	assert.Nil(t, r1.Seq)

	r2 := reads[1].Alignments[0]
	assert.False(t, r2.Strand)
	assert.Equal(t, 2300, r2.ReadLen)
	assert.Equal(t, 2000, r2.ReadStart)
	assert.Equal(t, 1, r2.ReadEnd)

	assert.Equal(t, []byte("CCGT"), reads[2].Seq)
}

func TestSAMFeedBadLine(t *testing.T) {
	g := abc(t)
	in := samHeader +
		"r1\t0\tA\t1\t60\t2000M\t*\t0\t0\t*\t*\n" +
		"r9\tnotaflag\tA\t1\t60\t2000M\t*\t0\t0\t*\t*\n" +
		"r2\t0\tC\t1\t60\t2000M\t*\t0\t0\t*\t*\n"
	sr, err := newSAMReader(strings.NewReader(in))
	require.NoError(t, err)
	reads := collect(t, SAMFeed(sr, g))
	require.Len(t, reads, 2)
	assert.Equal(t, "r1", reads[0].Name)
	assert.Equal(t, "r2", reads[1].Name)

	// a failing stream still stops the feed
	broken := io.MultiReader(strings.NewReader(samHeader+"r1\t0\tA\t1\t60\t2000M\t*\t0\t0\t*\t*\n"),
		iotest.ErrReader(errors.New("device gone")))
	sr, err = newSAMReader(broken)
	require.NoError(t, err)
	out := make(chan *scaffold.AlignedRead, 4)
	err = SAMFeed(sr, g)(context.Background(), out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadRecord)
	assert.Contains(t, err.Error(), "device gone")
}

func TestPAFFeed(t *testing.T) {
	g := abc(t)
	seqs := map[string][]byte{"r2": bytes.Repeat([]byte("T"), 2300), "r1": []byte("short")}
	reads := collect(t, PAFFeed(strings.NewReader(testPAF), g, seqs))
	require.Len(t, reads, 2)
	require.Len(t, reads[0].Alignments, 3)
	assert.Nil(t, reads[0].Seq)
	assert.Len(t, reads[1].Seq, 2300)

	sr, err := newSAMReader(strings.NewReader(testSAM))
	require.NoError(t, err)
	fromSAM := collect(t, SAMFeed(sr, g))
	for i := 0; i < 2; i++ {
		for j, a := range reads[i].Alignments {
			if !a.Primary {
				continue
			}
			s := fromSAM[i].Alignments[j]
			assert.Equal(t, [4]int{s.ReadStart, s.ReadEnd, s.RefStart, s.RefEnd},
				[4]int{a.ReadStart, a.ReadEnd, a.RefStart, a.RefEnd}, a.String())
		}
	}
	assert.False(t, reads[1].Alignments[1].Primary)
}

func TestParsePAF(t *testing.T) {
	for _, bad := range []string{
		"r\t10\t0\t5\t+\tA\t10\t0\t5\t5\t5",
		"r\t10\t0\t5\t*\tA\t10\t0\t5\t5\t5\t60",
		"r\t10\tx\t5\t+\tA\t10\t0\t5\t5\t5\t60",
		"r\t10\t5\t5\t+\tA\t10\t0\t5\t5\t5\t60",
	} {
		_, err := parsePAF(bad)
		assert.ErrorIs(t, err, errPAFLine, bad)
	}
	rec, err := parsePAF("r\t10\t0\t5\t-\tA\t10\t2\t7\t5\t5\t60\ttp:A:S\tcm:i:3")
	require.NoError(t, err)
	assert.False(t, rec.Primary)
	assert.Equal(t, byte('-'), rec.RelativeStrand)
	_, err = rec.Alignment(bdgraph.NewGraph(0))
	assert.ErrorIs(t, err, bdgraph.ErrNodeNotFound)
}

func TestLoadReads(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "reads.fa")
	require.NoError(t, os.WriteFile(fn, []byte(">r1 runid=x\nacgt\nAC\n>r2\nGGG\n"), 0o644))
	reads, err := LoadReads(fn)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"r1": []byte("ACGTAC"), "r2": []byte("GGG")}, reads)
}

func TestWriteNodes(t *testing.T) {
	g := abc(t)
	fn := filepath.Join(t.TempDir(), "nodes.fa")
	require.NoError(t, WriteNodes(g, fn))
	reads, err := LoadReads(fn)
	require.NoError(t, err)
	assert.Len(t, reads, 3)
	assert.Len(t, reads["B"], 500)
}

func TestSpoa(t *testing.T) {
	s := Spoa{Cmd: "npgraph-no-such-consensus-tool", Dir: t.TempDir()}
	_, err := s.Consensus(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSequence)
	cons, err := s.Consensus(context.Background(), [][]byte{[]byte("ACGT")})
	require.NoError(t, err)
	assert.Equal(t, []byte("ACGT"), cons)
	_, err = s.Consensus(context.Background(), [][]byte{[]byte("ACGT"), []byte("ACGA")})
	assert.Error(t, err)
}

func TestParseConsensus(t *testing.T) {
	cons, err := parseConsensus([]byte(">Consensus LN:i:6\nacgtac\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ACGTAC"), cons)
	_, err = parseConsensus(nil)
	assert.ErrorIs(t, err, ErrNoSequence)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := abc(t)
	sr, err := newSAMReader(strings.NewReader(testSAM))
	require.NoError(t, err)
	cfg := testConfig()
	cfg.NumCPU = 2
	e, err := Run(context.Background(), g, cfg, nil, SAMFeed(sr, g))
	require.NoError(t, err)
	assert.Equal(t, 1, e.Committed())

	a, _ := g.NodeByName("A")
	es := g.EdgesAt(a, bdgraph.OUT)
	require.Len(t, es, 1)
	require.True(t, es[0].IsComposite())
	b, _ := g.NodeByName("B")
	assert.True(t, es[0].Path.Contains(b))
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := abc(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := func(ctx context.Context, out chan<- *scaffold.AlignedRead) error {
		<-ctx.Done()
		return ctx.Err()
	}
	_, err := Run(ctx, g, testConfig(), nil, block)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNoReads(t *testing.T) {
	g := abc(t)
	sr, err := newSAMReader(strings.NewReader(samHeader))
	require.NoError(t, err)
	e, err := Run(context.Background(), g, testConfig(), nil, SAMFeed(sr, g))
	require.NoError(t, err)
	assert.Zero(t, e.Committed())
}

func TestWriteBins(t *testing.T) {
	g := abc(t)
	bn := binner.New(g, testConfig())
	bn.Run()
	var buf bytes.Buffer
	require.NoError(t, WriteBins(&buf, g, bn))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "A\t2000\t30.00\t0\t{0:1}", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "B\t500\t60.00\t-1\t"), lines[2])
}

func TestIsPAF(t *testing.T) {
	assert.True(t, isPAF("x.paf"))
	assert.True(t, isPAF("x.paf.gz"))
	assert.False(t, isPAF("x.sam"))
	assert.False(t, isPAF("x.bam"))
}
