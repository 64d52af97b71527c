package process

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// parseLsof reads `lsof -F pc` output: a "p<pid>" line starts each process,
// followed by "c<command>"; other field lines are skipped.
func parseLsof(out []byte) []Info {
	var procs []Info
	seen := make(map[int]bool)
	current := -1

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < 2 {
			continue
		}
		switch line[0] {
		case 'p':
			pid, err := strconv.Atoi(line[1:])
			if err != nil || pid <= 0 {
				current = -1
				continue
			}
			if seen[pid] {
				current = -1
				continue
			}
			seen[pid] = true
			procs = append(procs, Info{PID: pid})
			current = len(procs) - 1
		case 'c':
			if current >= 0 && procs[current].Command == "" {
				procs[current].Command = line[1:]
			}
		}
	}
	return procs
}

// parseNetstat reads `netstat -ano -p TCP` output and returns the owners of
// LISTENING sockets whose local address ends in :port.
func parseNetstat(out []byte, port int) []Info {
	var procs []Info
	seen := make(map[int]bool)
	suffix := ":" + strconv.Itoa(port)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// Proto  Local  Foreign  State  PID
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		procs = append(procs, Info{PID: pid})
	}
	return procs
}
