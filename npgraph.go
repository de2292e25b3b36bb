package main

import (
	"github.com/jwaldrip/odin/cli"

	"npgraph/constructbdg"
	"npgraph/deconstructbdg"
)

var app = cli.New("1.0.0", "Long read bridging of assembly graphs", func(c cli.Command) {})

func init() {
	app.DefineStringFlag("C", "", "YAML configure file, built-in defaults when empty")
	app.DefineStringFlag("cpuprofile", "", "write cpu profile to file")
	app.DefineIntFlag("K", 0, "overlap between adjacent contigs, 0 infers it from the graph")
	app.DefineStringFlag("p", "npgraph", "prefix of the output file")
	app.DefineIntFlag("t", 1, "number of CPU used")
	app.DefineBoolFlag("Debug", false, "Enable Debug model[false]")

	cbdg := app.DefineSubCommand("cbdg", "load an assembly graph and write it as GFA and FASTA", constructbdg.CBDG)
	{
		cbdg.DefineStringFlag("input", "", "assembly graph, *.gfa or *.fastg, optionally compressed")
		cbdg.DefineBoolFlag("Graph", false, "output dot graph file")
	}
	decbdg := app.DefineSubCommand("bridge", "resolve the assembly graph using long read alignments", deconstructbdg.DeconstructBDG)
	{
		decbdg.DefineStringFlag("input", "", "assembly graph, *.gfa or *.fastg, optionally compressed")
		decbdg.DefineStringFlag("align", "", "alignments of the long reads to the graph nodes, *.sam, *.bam or *.paf; empty runs the aligner")
		decbdg.DefineStringFlag("LongReadFile", "", "long reads file, FASTA or FASTQ")
		decbdg.DefineBoolFlag("Graph", false, "output dot graph file")
	}
	bin := app.DefineSubCommand("bin", "cluster contigs into coverage bins", deconstructbdg.Bin)
	{
		bin.DefineStringFlag("input", "", "assembly graph, *.gfa or *.fastg, optionally compressed")
	}
}

func main() {
	app.Start()
}
