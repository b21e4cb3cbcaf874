// Package process inspects and signals local processes.
package process

import (
	"fmt"
	"os"
	"syscall"
)

// IsProcessAlive checks if a process with the given PID is still running.
// Signal 0 probes existence without delivering anything; EPERM still means
// the process exists.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}

// Signal delivers sig to pid.
func Signal(pid int, sig os.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return p.Signal(sig)
}
