// Package deconstructbdg bridges the unique contigs of an assembly graph
// with long read alignments and writes the simplified graph.
package deconstructbdg

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jwaldrip/odin/cli"
	logging "github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"npgraph/bdgraph"
	"npgraph/binner"
	"npgraph/bridge"
	"npgraph/config"
	"npgraph/constructbdg"
	"npgraph/scaffold"
	"npgraph/utils"
)

var log = logging.MustGetLogger("deconstructbdg")

// Feed sends aligned reads on out and returns when its input is exhausted.
type Feed func(ctx context.Context, out chan<- *scaffold.AlignedRead) error

// watch logs the graph and bridge progress every interval until ctx is
// done.
func watch(ctx context.Context, g *bdgraph.Graph, e *bridge.Engine, every time.Duration) {
	if every <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			var st bdgraph.Stats
			g.Snapshot(func(v bdgraph.View) { st = v.Stats() })
			log.Infof("[watch] %v bridges:%v committed:%d", st, e.Report(), e.Committed())
		}
	}
}

// Run bins g, then streams the reads of feed through cfg.NumCPU bridge
// workers and finally commits the connected bridges.
func Run(ctx context.Context, g *bdgraph.Graph, cfg config.Config, cons bridge.Consensus, feed Feed) (*bridge.Engine, error) {
	bn := binner.New(g, cfg)
	bn.Run()
	e := bridge.NewEngine(g, bn, cons, cfg)

	wctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		watch(wctx, g, e, cfg.WatchInterval)
		close(done)
	}()
	defer func() {
		stop()
		<-done
	}()

	eg, ectx := errgroup.WithContext(ctx)
	rc := make(chan *scaffold.AlignedRead, cfg.NumCPU)
	eg.Go(func() error {
		defer close(rc)
		return feed(ectx, rc)
	})
	for i := 0; i < cfg.NumCPU; i++ {
		eg.Go(func() error {
			return e.Run(ectx, rc)
		})
	}
	if err := eg.Wait(); err != nil {
		return e, err
	}
	e.Finish(ctx)
	return e, nil
}

type Options struct {
	utils.ArgsOpt
	GraphFn string
	AlignFn string
	ReadsFn string
	Graph   bool
}

func checkArgs(c cli.Command) (opt Options, succ bool) {
	opt.GraphFn = c.Flag("input").String()
	if opt.GraphFn == "" {
		log.Errorf("[checkArgs] argument 'input' not set")
		return opt, false
	}
	opt.AlignFn = c.Flag("align").String()
	opt.ReadsFn = c.Flag("LongReadFile").String()
	if opt.AlignFn == "" && opt.ReadsFn == "" {
		log.Errorf("[checkArgs] one of 'align' and 'LongReadFile' must be set")
		return opt, false
	}
	var ok bool
	opt.Graph, ok = c.Flag("Graph").Get().(bool)
	if !ok {
		log.Errorf("[checkArgs] argument 'Graph': %v set error", c.Flag("Graph").String())
		return opt, false
	}
	return opt, true
}

func isPAF(fn string) bool {
	fn = strings.TrimSuffix(strings.TrimSuffix(fn, ".gz"), ".zst")
	return strings.HasSuffix(fn, ".paf")
}

// feedFor opens the alignment input: a PAF or SAM/BAM file, or, without
// one, the mapper run on the nodes of g. The returned function releases
// the input and reports a mapper failure.
func feedFor(ctx context.Context, opt Options, cfg config.Config, g *bdgraph.Graph) (Feed, func() error, error) {
	switch {
	case opt.AlignFn == "":
		ref := opt.Prefix + ".nodes.fa"
		if err := WriteNodes(g, ref); err != nil {
			return nil, nil, err
		}
		out, wait, err := Aligner{Cmd: cfg.Aligner, Args: cfg.AlignerArgs}.Start(ctx, ref, opt.ReadsFn)
		if err != nil {
			return nil, nil, err
		}
		sr, err := newSAMReader(out)
		if err != nil {
			wait()
			return nil, nil, err
		}
		release := func() error {
			io.Copy(io.Discard, out)
			return wait()
		}
		return SAMFeed(sr, g), release, nil
	case isPAF(opt.AlignFn):
		var reads map[string][]byte
		if opt.ReadsFn != "" {
			var err error
			if reads, err = LoadReads(opt.ReadsFn); err != nil {
				return nil, nil, err
			}
		}
		fp, err := utils.OpenReader(opt.AlignFn)
		if err != nil {
			return nil, nil, err
		}
		return PAFFeed(fp, g, reads), fp.Close, nil
	default:
		sr, err := OpenSAM(opt.AlignFn, opt.NumCPU/5+1)
		if err != nil {
			return nil, nil, err
		}
		return SAMFeed(sr, g), sr.Close, nil
	}
}

// DeconstructBDG loads the assembly graph, bridges it with the long read
// alignments and writes <prefix>.final.{gfa,fasta}.
func DeconstructBDG(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[DeconstructBDG] check global Arguments error, opt: %v", gOpt)
	}
	utils.InitLogging(gOpt.Debug)
	defer utils.StartProfile(gOpt.Cpuprofile)()
	opt, suc := checkArgs(c)
	if !suc {
		log.Fatalf("[DeconstructBDG] check Arguments error, opt: %v", opt)
	}
	opt.ArgsOpt = gOpt
	cfg, err := config.Load(opt.CfgFn)
	if err != nil {
		log.Fatalf("[DeconstructBDG] %v", err)
	}
	if opt.Kmer > 0 {
		cfg.Kmer = opt.Kmer
	}
	cfg.NumCPU = opt.NumCPU
	log.Infof("[DeconstructBDG] Arguments: %+v", opt)

	g, err := constructbdg.Load(opt.GraphFn, cfg.Kmer)
	if err != nil {
		log.Fatalf("[DeconstructBDG] %v", err)
	}
	log.Noticef("[DeconstructBDG] input %v", g.Stats())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	feed, release, err := feedFor(ctx, opt, cfg, g)
	if err != nil {
		log.Fatalf("[DeconstructBDG] %v", err)
	}
	cons := Spoa{Cmd: cfg.ConsensusCmd, Dir: os.TempDir()}
	e, err := Run(ctx, g, cfg, cons, feed)
	if rerr := release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		log.Fatalf("[DeconstructBDG] %v", err)
	}
	log.Noticef("[DeconstructBDG] %d bridges committed, output %v", e.Committed(), g.Stats())
	if err := constructbdg.WriteGraph(g, opt.Prefix+".final", "", opt.Graph); err != nil {
		log.Fatalf("[DeconstructBDG] %v", err)
	}
}

// Bin clusters the graph into coverage bins and writes the multiplicity of
// every node to <prefix>.bins.tsv.
func Bin(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[Bin] check global Arguments error, opt: %v", gOpt)
	}
	utils.InitLogging(gOpt.Debug)
	fn := c.Flag("input").String()
	if fn == "" {
		log.Fatalf("[Bin] argument 'input' not set")
	}
	cfg, err := config.Load(gOpt.CfgFn)
	if err != nil {
		log.Fatalf("[Bin] %v", err)
	}
	if gOpt.Kmer > 0 {
		cfg.Kmer = gOpt.Kmer
	}
	g, err := constructbdg.Load(fn, cfg.Kmer)
	if err != nil {
		log.Fatalf("[Bin] %v", err)
	}
	bn := binner.New(g, cfg)
	bn.Run()
	out := gOpt.Prefix + ".bins.tsv"
	fp, err := utils.CreateWriter(out)
	if err != nil {
		log.Fatalf("[Bin] %v", err)
	}
	if err := WriteBins(fp, g, bn); err != nil {
		fp.Close()
		log.Fatalf("[Bin] %v", err)
	}
	if err := fp.Close(); err != nil {
		log.Fatalf("[Bin] %v", err)
	}
	log.Noticef("[Bin] %d bins, assignments in %s", len(bn.Bins()), out)
}
