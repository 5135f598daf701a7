package osd

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// sysStats tracks the live values the $B/$C/$M macros expand to (§4.H step
// 1). gopsutil/v3 is the corpus's one cross-platform system-stats library
// (see viamrobotics-rdk, jmylchreest-tvarr in the retrieval pack); network
// bandwidth is derived from its cumulative byte counters by differencing
// against the previous tick, matching "$B[:iface] network bandwidth since
// last tick".
type sysStats struct {
	cpuPercent float64
	memUsedMB  float64
	memTotalMB float64
	bandwidth  map[string]float64

	lastSample  time.Time
	lastCounters map[string]gopsnet.IOCountersStat
}

func newSysStats() *sysStats {
	return &sysStats{bandwidth: make(map[string]float64)}
}

// sample refreshes all tracked values. Failures of any individual source
// leave the prior value in place rather than aborting the whole tick — a
// missing HAL reading or unreadable /proc counter should not stall OSD
// updates for slots that don't use that macro.
func (s *sysStats) sample() {
	now := time.Now()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.cpuPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.memUsedMB = float64(vm.Used) / (1 << 20)
		s.memTotalMB = float64(vm.Total) / (1 << 20)
	}

	counters, err := gopsnet.IOCounters(true)
	if err != nil {
		s.lastSample = now
		return
	}

	elapsed := now.Sub(s.lastSample).Seconds()
	current := make(map[string]gopsnet.IOCountersStat, len(counters))
	var totalBytes uint64
	for _, c := range counters {
		current[c.Name] = c
		totalBytes += c.BytesSent + c.BytesRecv
		if s.lastCounters != nil && elapsed > 0 {
			if prev, ok := s.lastCounters[c.Name]; ok {
				delta := (c.BytesSent + c.BytesRecv) - (prev.BytesSent + prev.BytesRecv)
				s.bandwidth[c.Name] = float64(delta) / elapsed
			}
		}
	}

	if s.lastCounters != nil && elapsed > 0 {
		var prevTotal uint64
		for _, prev := range s.lastCounters {
			prevTotal += prev.BytesSent + prev.BytesRecv
		}
		s.bandwidth[""] = float64(totalBytes-prevTotal) / elapsed
	}

	s.lastCounters = current
	s.lastSample = now
}
