package utils

import (
	"os"
	"runtime/pprof"
)

// StartProfile writes a CPU profile to fn until the returned stop is
// called. An empty fn profiles nothing.
func StartProfile(fn string) (stop func()) {
	if fn == "" {
		return func() {}
	}
	fp, err := os.Create(fn)
	if err != nil {
		log.Fatalf("[StartProfile] open cpuprofile file: %v failed: %v", fn, err)
	}
	if err := pprof.StartCPUProfile(fp); err != nil {
		log.Fatalf("[StartProfile] %v", err)
	}
	return func() {
		pprof.StopCPUProfile()
		fp.Close()
	}
}
