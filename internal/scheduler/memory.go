package scheduler

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/process"
)

// sampleMemory returns the process RSS in bytes, or the Go runtime's view of
// obtained memory when the OS query is unavailable.
func sampleMemory() int64 {
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			return int64(mi.RSS)
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys)
}
