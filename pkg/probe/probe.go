package probe

import (
	"context"
	"time"

	"syscontrol/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// High-watermark thresholds for host warnings.
const (
	cpuAlarmPercent  = 95.0
	memAlarmPercent  = 90.0
	diskAlarmPercent = 90.0
)

// HostMetrics holds one sampling pass over host resources. A nil field means
// that metric could not be sampled this time; the cycle continues without it.
type HostMetrics struct {
	CPUPercent    *float64  `json:"cpu_percent,omitempty"`
	MemoryPercent *float64  `json:"memory_percent,omitempty"`
	DiskPercent   *float64  `json:"disk_percent,omitempty"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Empty reports whether no metric was sampled at all.
func (m HostMetrics) Empty() bool {
	return m.CPUPercent == nil && m.MemoryPercent == nil && m.DiskPercent == nil
}

// Probe samples instantaneous host resource usage.
type Probe struct {
	timeout  time.Duration
	diskPath string
}

// New creates a probe with the given per-sample timeout.
func New(timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Probe{timeout: timeout, diskPath: "/"}
}

// Sample collects CPU, memory and disk usage percentages. Each metric is
// bounded by the probe timeout; a metric that fails or times out is left nil
// and logged as a warning. Sample never returns an error.
func (p *Probe) Sample(ctx context.Context) HostMetrics {
	sampleCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	metrics := HostMetrics{SampledAt: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(sampleCtx, 0, false); err != nil {
		logger.WarnCtx(ctx, "host cpu sampling failed: %v", err)
	} else if len(percents) > 0 {
		v := clampPercent(percents[0])
		metrics.CPUPercent = &v
	}

	if vm, err := mem.VirtualMemoryWithContext(sampleCtx); err != nil {
		logger.WarnCtx(ctx, "host memory sampling failed: %v", err)
	} else {
		v := clampPercent(vm.UsedPercent)
		metrics.MemoryPercent = &v
	}

	if usage, err := disk.UsageWithContext(sampleCtx, p.diskPath); err != nil {
		logger.WarnCtx(ctx, "host disk sampling failed: %v", err)
	} else {
		v := clampPercent(usage.UsedPercent)
		metrics.DiskPercent = &v
	}

	p.warnHighWatermarks(ctx, metrics)
	return metrics
}

func (p *Probe) warnHighWatermarks(ctx context.Context, m HostMetrics) {
	if m.CPUPercent != nil && *m.CPUPercent > cpuAlarmPercent {
		logger.WarnCtx(ctx, "high cpu usage detected: %.1f%%", *m.CPUPercent)
	}
	if m.MemoryPercent != nil && *m.MemoryPercent > memAlarmPercent {
		logger.WarnCtx(ctx, "high memory usage detected: %.1f%%", *m.MemoryPercent)
	}
	if m.DiskPercent != nil && *m.DiskPercent > diskAlarmPercent {
		logger.WarnCtx(ctx, "disk almost full: %.1f%%", *m.DiskPercent)
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
