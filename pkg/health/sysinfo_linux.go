//go:build linux

package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SystemMemoryCheck checks host memory usage (Linux only). Usage above
// MaxUsagePercent marks the service degraded rather than down, since
// reports already queued still complete.
type SystemMemoryCheck struct {
	MaxUsagePercent float64
}

func (c *SystemMemoryCheck) Name() string { return "system_memory" }

func (c *SystemMemoryCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		result.Status = StatusUnknown
		result.Error = fmt.Sprintf("failed to get system memory info: %v", err)
		return result
	}

	unit := uint64(info.Unit)
	totalMem := uint64(info.Totalram) * unit
	freeMem := uint64(info.Freeram) * unit
	usagePercent := float64(totalMem-freeMem) / float64(totalMem) * 100

	result.Metadata["total_bytes"] = totalMem
	result.Metadata["free_bytes"] = freeMem
	result.Metadata["usage_percent"] = fmt.Sprintf("%.2f%%", usagePercent)
	result.Metadata["procs"] = info.Procs

	if c.MaxUsagePercent > 0 && usagePercent > c.MaxUsagePercent {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("memory usage %.2f%% exceeds threshold %.2f%%", usagePercent, c.MaxUsagePercent)
		return result
	}

	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("memory usage: %.2f%%", usagePercent)
	return result
}
