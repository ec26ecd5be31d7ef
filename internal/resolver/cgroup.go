package resolver

import "strings"

// ContainerIDFromCgroup extracts a container ID from the contents of a
// per-process cgroup file. Each line carries a cgroup path as its final
// colon-separated field (v1: "N:controller:/path", v2: "0::/path"); the
// container ID is the last non-empty segment of that path. Lines are
// scanned in order and the first usable ID wins. Returns false when the
// content is degenerate (separators only, empty lines).
func ContainerIDFromCgroup(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		path := line
		if i := strings.LastIndexByte(line, ':'); i >= 0 {
			path = line[i+1:]
		}

		if id := lastSegment(path); id != "" {
			return id, true
		}
	}
	return "", false
}

// lastSegment returns the last non-empty "/"-separated segment of path.
func lastSegment(path string) string {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return ""
}
