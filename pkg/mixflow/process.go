package mixflow

import (
	"fmt"

	"github.com/mitchellh/go-ps"
)

// resolveProcessName maps a pid to its executable name via the OS process
// table. Resolution failure is expected (the process may have exited, or
// access may be denied) and degrades to a placeholder instead of an error.
func resolveProcessName(pid uint32) string {
	process, err := ps.FindProcess(int(pid))
	if err != nil || process == nil {
		return fmt.Sprintf("unknown_process_%d", pid)
	}

	return process.Executable()
}

// fallbackDisplayName labels sessions whose OS display name is empty.
func fallbackDisplayName(pid uint32) string {
	return fmt.Sprintf("PID %d", pid)
}
