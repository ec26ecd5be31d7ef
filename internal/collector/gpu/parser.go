package gpu

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// ParseProcessStats parses nvidia-smi compute-apps accounting output into a
// PID → used-MiB mapping. The first line is a header and is discarded. Rows
// whose PID equals selfPID are excluded; rows that don't parse (sentinel
// "No running processes found" lines, "[N/A]" memory fields, truncated
// output) are skipped silently.
func ParseProcessStats(raw []byte, selfPID string) map[string]int64 {
	samples := make(map[string]int64)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if header {
			header = false
			continue
		}
		if line == "" {
			continue
		}

		pid, usedMiB, ok := parseStatsLine(line)
		if !ok || pid == selfPID {
			continue
		}
		samples[pid] = usedMiB
	}

	return samples
}

// parseStatsLine parses a single accounting row:
//
//	22165, 25 MiB
func parseStatsLine(line string) (string, int64, bool) {
	pidField, memField, ok := strings.Cut(line, ",")
	if !ok {
		return "", 0, false
	}

	pid := strings.TrimSpace(pidField)
	if pid == "" {
		return "", 0, false
	}
	if _, err := strconv.Atoi(pid); err != nil {
		return "", 0, false
	}

	mem := strings.TrimSpace(memField)
	mem = strings.TrimSuffix(mem, "MiB")
	mem = strings.TrimSpace(mem)
	usedMiB, err := strconv.ParseInt(mem, 10, 64)
	if err != nil {
		return "", 0, false
	}

	return pid, usedMiB, true
}
