package runner

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/agentdeck/agentdeck/pkg/session"
)

// Stats is one sample of the agent process's resource usage, reported
// through the observer side channel for status displays.
type Stats struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	SampledAt  time.Time `json:"sampled_at"`
}

func (r *Runner) sampleStats(ctx context.Context, pid int) {
	if _, nop := r.observer.(session.NopObserver); nop {
		return
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	ticker := time.NewTicker(r.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sample := Stats{PID: int32(pid), SampledAt: time.Now().UTC()}
		if cpu, err := proc.CPUPercent(); err == nil {
			sample.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			sample.RSSBytes = mem.RSS
		}
		r.observer.OnEvent(session.EventProcessStats, sample)
	}
}
