// Package config holds the tuning parameters of the bridging engine. A
// Config is built once (defaults, then an optional YAML file, then command
// line overrides) and passed by value afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Kmer is the overlap between adjacent contigs. 0 means infer it from
	// the loaded graph.
	Kmer int `yaml:"kmer"`

	// ATol and RTol are the absolute (bp) and relative distance tolerances.
	ATol int     `yaml:"a_tol"`
	RTol float64 `yaml:"r_tol"`

	// MinSupport is the waypoint score needed to split a bridge into
	// segments, and the vote margin that prunes a losing candidate path.
	MinSupport int `yaml:"min_support"`

	// SLimit bounds the DFS expansion steps of one search, MaxDFSPaths the
	// number of candidates it may return.
	SLimit      int `yaml:"s_limit"`
	MaxDFSPaths int `yaml:"max_dfs_paths"`

	MinMapQ           int `yaml:"min_mapq"`
	OverhangTolerance int `yaml:"overhang_tolerance"`

	// binning
	MinSignificantLength int     `yaml:"min_significant_length"`
	DBSCANEps            float64 `yaml:"dbscan_eps"`
	DBSCANMinPts         int     `yaml:"dbscan_min_pts"`
	GDTolerance          float64 `yaml:"gd_tolerance"`
	GDMaxIter            int     `yaml:"gd_max_iter"`
	GDStep               float64 `yaml:"gd_step"`

	// AllowGapFill lets the search join two dead-end anchors with a pseudo
	// edge when no graph path exists.
	AllowGapFill bool `yaml:"allow_gap_fill"`

	WatchInterval time.Duration `yaml:"watch_interval"`
	NumCPU        int           `yaml:"num_cpu"`

	Aligner      string   `yaml:"aligner"`
	AlignerArgs  []string `yaml:"aligner_args"`
	ConsensusCmd string   `yaml:"consensus_cmd"`
}

func Default() Config {
	return Config{
		ATol:                 300,
		RTol:                 0.2,
		MinSupport:           3,
		SLimit:               500,
		MaxDFSPaths:          10,
		MinMapQ:              1,
		OverhangTolerance:    1000,
		MinSignificantLength: 1000,
		DBSCANEps:            0.25,
		DBSCANMinPts:         3,
		GDTolerance:          0.01,
		GDMaxIter:            1000,
		GDStep:               0.5,
		AllowGapFill:         true,
		WatchInterval:        5 * time.Second,
		NumCPU:               1,
		Aligner:              "minimap2",
		AlignerArgs:          []string{"-x", "map-ont", "-a", "-k15", "-w5"},
		ConsensusCmd:         "spoa",
	}
}

// Load overlays the YAML file fn on the defaults. An empty fn returns the
// defaults.
func Load(fn string) (Config, error) {
	cfg := Default()
	if fn == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(fn)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", fn, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", fn, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Kmer < 0:
		return fmt.Errorf("kmer %d must be >= 0", c.Kmer)
	case c.ATol < 0:
		return fmt.Errorf("a_tol %d must be >= 0", c.ATol)
	case c.RTol < 0 || c.RTol >= 1:
		return fmt.Errorf("r_tol %v must be in [0,1)", c.RTol)
	case c.MinSupport < 1:
		return fmt.Errorf("min_support %d must be >= 1", c.MinSupport)
	case c.SLimit < 1 || c.MaxDFSPaths < 1:
		return fmt.Errorf("s_limit %d and max_dfs_paths %d must be >= 1", c.SLimit, c.MaxDFSPaths)
	case c.DBSCANEps <= 0 || c.DBSCANMinPts < 1:
		return fmt.Errorf("dbscan_eps %v must be > 0 and dbscan_min_pts %d >= 1", c.DBSCANEps, c.DBSCANMinPts)
	case c.GDTolerance <= 0 || c.GDMaxIter < 1 || c.GDStep <= 0:
		return fmt.Errorf("gradient descent settings tol=%v iter=%d step=%v invalid", c.GDTolerance, c.GDMaxIter, c.GDStep)
	case c.NumCPU < 1:
		return fmt.Errorf("num_cpu %d must be >= 1", c.NumCPU)
	}
	return nil
}

// Tolerance returns the allowed mismatch for a distance d.
func (c Config) Tolerance(d int) int {
	if d < 0 {
		d = -d
	}
	r := int(c.RTol * float64(d))
	if r > c.ATol {
		return r
	}
	return c.ATol
}
