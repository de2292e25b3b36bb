package utils

import (
	"errors"
	"math"
	"unsafe"

	"github.com/jwaldrip/odin/cli"
)

type ArgsOpt struct {
	Prefix     string
	Kmer       int
	NumCPU     int
	CfgFn      string
	Cpuprofile string
	Debug      bool
}

// return global arguments and check if successed
func CheckGlobalArgs(c cli.Command) (opt ArgsOpt, succ bool) {
	opt.Prefix = c.Flag("p").String()
	if opt.Prefix == "" {
		log.Errorf("[CheckGlobalArgs] args 'p' not set")
		return opt, false
	}
	// empty config file means built-in defaults
	opt.CfgFn = c.Flag("C").String()
	opt.Cpuprofile = c.Flag("cpuprofile").String()

	var ok bool
	opt.Kmer, ok = c.Flag("K").Get().(int)
	if !ok {
		log.Errorf("[CheckGlobalArgs] args 'K' : %v set error", c.Flag("K").String())
		return opt, false
	}
	if opt.Kmer < 0 {
		log.Errorf("[CheckGlobalArgs] the argument 'K':%d must be >= 0 (0 infers it from the graph)", opt.Kmer)
		return opt, false
	}
	opt.NumCPU, ok = c.Flag("t").Get().(int)
	if !ok {
		log.Errorf("[CheckGlobalArgs] args 't': %v set error", c.Flag("t").String())
		return opt, false
	}
	if opt.NumCPU < 1 {
		opt.NumCPU = 1
	}
	opt.Debug, ok = c.Flag("Debug").Get().(bool)
	if !ok {
		log.Errorf("[CheckGlobalArgs] args 'Debug': %v set error", c.Flag("Debug").String())
		return opt, false
	}
	return opt, true
}

func AbsInt(a int) int {
	if a < 0 {
		return -a
	} else {
		return a
	}
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	} else {
		return b
	}
}

func MinInt(a, b int) int {
	if a > b {
		return b
	} else {
		return a
	}
}

// Round half away from zero
func Round(n float64) int {
	if n < 0 {
		return int(math.Ceil(n - 0.5))
	}
	return int(math.Floor(n + 0.5))
}

func ByteArrInt(id []byte) (d int, err error) {
	for _, c := range id {
		if c < '0' || c > '9' {
			err = errors.New("can't convert to digit...")
			return d, err
		}
		d = d*10 + int(c-'0')
	}
	return d, nil
}

func Bytes2String(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

func BytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return Bytes2String(a) == Bytes2String(b)
}
