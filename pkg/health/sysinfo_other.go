//go:build !linux

package health

import (
	"context"
	"runtime"
	"time"
)

// SystemMemoryCheck reports Go runtime memory on platforms without
// sysinfo(2).
type SystemMemoryCheck struct {
	MaxUsagePercent float64
}

func (c *SystemMemoryCheck) Name() string { return "system_memory" }

func (c *SystemMemoryCheck) Check(ctx context.Context) CheckResult {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return CheckResult{
		Status:    StatusHealthy,
		Message:   "runtime memory only on " + runtime.GOOS,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"heap_alloc_bytes": m.HeapAlloc,
			"sys_bytes":        m.Sys,
			"platform":         runtime.GOOS,
		},
	}
}
