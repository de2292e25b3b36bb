// Package constructbdg loads assembly graphs from GFA1 or SPAdes FASTG into
// a bidirected graph, and holds the graph conversion stage.
package constructbdg

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jwaldrip/odin/cli"
	logging "github.com/op/go-logging"

	"npgraph/bdgraph"
	"npgraph/config"
	"npgraph/utils"
)

var log = logging.MustGetLogger("constructbdg")

// ErrMalformedRecord marks an input record that was skipped.
var ErrMalformedRecord = errors.New("malformed record")

// Format of an assembly graph file, from its name with any compression
// suffix removed.
func Format(fn string) string {
	base := strings.ToLower(fn)
	for _, ext := range []string{".gz", ".zst", ".br", ".xz"} {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimPrefix(filepath.Ext(base), ".")
}

// Load reads the graph file fn; kmer 0 infers the overlap from the graph.
func Load(fn string, kmer int) (*bdgraph.Graph, error) {
	var load func(io.Reader, int) (*bdgraph.Graph, error)
	switch f := Format(fn); f {
	case "gfa", "gfa1":
		load = LoadGFA
	case "fastg":
		load = LoadFASTG
	default:
		return nil, fmt.Errorf("[Load] %s: unknown graph format %q", fn, f)
	}
	fp, err := utils.OpenReader(fn)
	if err != nil {
		return nil, fmt.Errorf("[Load] open %s: %w", fn, err)
	}
	defer fp.Close()
	return load(fp, kmer)
}

type Options struct {
	utils.ArgsOpt
	GraphFn string
	Graph   bool
}

func checkArgs(c cli.Command) (opt Options, succ bool) {
	opt.GraphFn = c.Flag("input").String()
	if opt.GraphFn == "" {
		log.Errorf("[checkArgs] argument 'input' not set")
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

type output struct {
	ext   string
	write func(io.Writer) error
}

// WriteGraph stores g as <prefix>.gfa and <prefix>.fasta, plus
// <prefix>.dot with dot set. suffix is appended to each file name, ".zst"
// compresses.
func WriteGraph(g *bdgraph.Graph, prefix, suffix string, dot bool) error {
	outs := []output{{".gfa", g.WriteGFA}, {".fasta", g.WriteFasta}}
	if dot {
		outs = append(outs, output{".dot", g.WriteDot})
	}
	for _, o := range outs {
		fn := prefix + o.ext + suffix
		fp, err := utils.CreateWriter(fn)
		if err != nil {
			return fmt.Errorf("[WriteGraph] create %s: %w", fn, err)
		}
		if err := o.write(fp); err != nil {
			fp.Close()
			return fmt.Errorf("[WriteGraph] write %s: %w", fn, err)
		}
		if err := fp.Close(); err != nil {
			return fmt.Errorf("[WriteGraph] close %s: %w", fn, err)
		}
	}
	return nil
}

// CBDG loads a graph and writes it back as GFA and FASTA with its
// statistics; a format conversion with no read evidence involved.
func CBDG(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[CBDG] check global Arguments error, opt: %v", gOpt)
	}
	utils.InitLogging(gOpt.Debug)
	defer utils.StartProfile(gOpt.Cpuprofile)()
	opt, suc := checkArgs(c)
	if !suc {
		log.Fatalf("[CBDG] check Arguments error, opt: %v", opt)
	}
	opt.ArgsOpt = gOpt
	cfg, err := config.Load(opt.CfgFn)
	if err != nil {
		log.Fatalf("[CBDG] %v", err)
	}
	if opt.Kmer > 0 {
		cfg.Kmer = opt.Kmer
	}
	g, err := Load(opt.GraphFn, cfg.Kmer)
	if err != nil {
		log.Fatalf("[CBDG] %v", err)
	}
	log.Noticef("[CBDG] %v", g.Stats())
	if err := WriteGraph(g, opt.Prefix, "", opt.Graph); err != nil {
		log.Fatalf("[CBDG] %v", err)
	}
}
