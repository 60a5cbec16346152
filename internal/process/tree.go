package process

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Children discovers the direct child PIDs of pid by scanning /proc. On
// platforms without /proc this returns an empty slice. Stop and Scoped do
// not use it; exec.Cmd already tracks its own direct child.
func Children(pid int) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var children []int
	for _, entry := range entries {
		childPID, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ppid, ok := readPPID(childPID)
		if ok && ppid == pid {
			children = append(children, childPID)
		}
	}
	return children, nil
}

func readPPID(pid int) (int, bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 4096), 1<<16)
	if !scanner.Scan() {
		return 0, false
	}
	line := scanner.Text()
	// Format: pid (comm) state ppid ...; comm may contain spaces/parens, so
	// split after the last ')'.
	idx := strings.LastIndex(line, ")")
	if idx < 0 {
		return 0, false
	}
	fields := strings.Fields(line[idx+1:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

// Tree returns pid and every descendant, breadth-first.
func Tree(pid int) []int {
	result := []int{pid}
	queue := []int{pid}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		kids, err := Children(next)
		if err != nil {
			continue
		}
		for _, k := range kids {
			result = append(result, k)
			queue = append(queue, k)
		}
	}
	return result
}
