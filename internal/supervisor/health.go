package supervisor

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ServerHealth is one managed child's liveness view, served to operators over
// the HTTP API.
type ServerHealth struct {
	Name          string  `json:"name"`
	Port          int     `json:"port"`
	PID           int     `json:"pid"`
	Running       bool    `json:"running"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Restarts      int     `json:"restarts"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryMB      float64 `json:"memoryMb"`
}

// Health reports the current state of every managed child, position-aligned
// with the registry. Resource figures come from the process table and stay
// zero once the child is gone.
func (sv *Supervisor) Health() []ServerHealth {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	out := make([]ServerHealth, sv.registry.Len())
	for i := 0; i < sv.registry.Len(); i++ {
		cfg := sv.registry.At(i).Config
		h := ServerHealth{Name: cfg.Name, Port: cfg.Port, Restarts: sv.restarts[i]}
		if cmd := sv.procs[i]; cmd != nil && cmd.Process != nil {
			h.PID = cmd.Process.Pid
			if p, err := process.NewProcess(int32(h.PID)); err == nil {
				if running, err := p.IsRunning(); err == nil && running {
					h.Running = true
					h.UptimeSeconds = int64(time.Since(sv.spawnedAt[i]).Seconds())
					if cpu, err := p.CPUPercent(); err == nil {
						h.CPUPercent = cpu
					}
					if mem, err := p.MemoryInfo(); err == nil && mem != nil {
						h.MemoryMB = float64(mem.RSS) / (1024 * 1024)
					}
				}
			}
		}
		out[i] = h
	}
	return out
}
