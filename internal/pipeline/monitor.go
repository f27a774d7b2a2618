package pipeline

import (
	"runtime"
)

// MemStats summarizes process memory, reported alongside pipeline info.
type MemStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGC          uint32 `json:"num_gc"`
	Goroutines     int    `json:"goroutines"`
}

// GetMemStats captures current memory statistics.
func GetMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		AllocBytes:     m.Alloc,
		HeapInuseBytes: m.HeapInuse,
		SysBytes:       m.Sys,
		NumGC:          m.NumGC,
		Goroutines:     runtime.NumGoroutine(),
	}
}
