package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an encoder process.
type ProcessStats struct {
	PID            int32         `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	MemoryRSSMB    float64       `json:"memory_rss_mb"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a child process once per second.
type ProcessMonitor struct {
	proc      *process.Process
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
// Returns an error if the process does not exist.
func NewProcessMonitor(pid int) (*ProcessMonitor, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		proc:      proc,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	pm.wg.Add(1)
	go pm.loop()
}

// Stop stops sampling and waits for the loop to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the most recent sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) loop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.sample()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.proc.Pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	// Percent(0) reports usage since the previous call; the process may
	// already be gone, in which case the last sample is kept.
	if cpu, err := pm.proc.PercentWithContext(pm.ctx, 0); err == nil {
		pm.stats.CPUPercent = cpu
	}
	if mem, err := pm.proc.MemoryInfoWithContext(pm.ctx); err == nil && mem != nil {
		pm.stats.MemoryRSSBytes = mem.RSS
		pm.stats.MemoryRSSMB = float64(mem.RSS) / (1024 * 1024)
	}
}
