package workerpool

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AvailableMemoryMB reads MemAvailable from /proc/meminfo, the basis for
// the memory-aware admission check in §4.5: the pool does not spawn a
// worker while available memory is below worker_memory_threshold_mb.
// Where /proc/meminfo cannot be read (e.g. off Linux) it returns an
// error, and the pool treats memory as unknown and spawns anyway.
func AvailableMemoryMB() (int, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed MemAvailable line: %q", line)
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("failed to parse MemAvailable: %w", err)
		}
		return kb / 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}
