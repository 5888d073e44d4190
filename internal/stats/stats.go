// Package stats reports process and system memory figures. Assembly
// buffers whole videos in memory, so memory pressure is the number an
// operator of this daemon actually watches.
package stats

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Memory is one point-in-time memory reading.
type Memory struct {
	// ProcessRSSBytes is the daemon's resident set size.
	ProcessRSSBytes uint64 `json:"processRssBytes"`

	// SystemUsedPercent is overall system memory utilization.
	SystemUsedPercent float64 `json:"systemUsedPercent"`
}

// ReadMemory samples current memory usage. Fields that cannot be read on
// the host platform are left at zero rather than failing the caller.
func ReadMemory() Memory {
	var m Memory

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			m.ProcessRSSBytes = info.RSS
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		m.SystemUsedPercent = vm.UsedPercent
	}

	return m
}
