package health

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/multierr"
)

// SystemSampler reports host resource usage.
type SystemSampler interface {
	Sample(ctx context.Context) (SystemStats, error)
}

// HostSampler reads CPU, memory and disk usage of the host.
type HostSampler struct {
	// DiskPath is the mount whose usage is reported.
	DiskPath string
}

// Sample returns whatever figures could be read along with any errors.
func (h HostSampler) Sample(ctx context.Context) (SystemStats, error) {
	var s SystemStats
	var errs error

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = multierr.Append(errs, err)
	} else if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		s.MemoryPercent = vm.UsedPercent
	}

	path := h.DiskPath
	if path == "" {
		path = "/"
	}
	if du, err := disk.UsageWithContext(ctx, path); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		s.DiskPercent = du.UsedPercent
	}
	return s, errs
}
