package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// HealthService reports process liveness and basic system stats.
func HealthService() *Service {
	start := time.Now()
	s := NewService("health")
	s.Get("*", func(_ *Context, _ *Request) (interface{}, error) {
		report := map[string]interface{}{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(start).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"timestamp":      time.Now().UnixMilli(),
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			report["memory"] = map[string]interface{}{
				"total":        vm.Total,
				"available":    vm.Available,
				"used_percent": vm.UsedPercent,
			}
		}
		return report, nil
	})
	return s
}
