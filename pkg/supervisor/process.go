package supervisor

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/procfs"
)

// kernel truncates comm to TASK_COMM_LEN-1 bytes
const commLen = 15

// ProcChecker finds processes by name under a procfs mount.
type ProcChecker struct {
	logger     *slog.Logger
	mountPoint string
}

func NewProcChecker(logger *slog.Logger, mountPoint string) *ProcChecker {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	return &ProcChecker{
		logger:     logger.With("component", "proc-checker"),
		mountPoint: mountPoint,
	}
}

// IsRunning matches name case-insensitively against each process's comm and
// the base name of its executable.
func (c *ProcChecker) IsRunning(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	fs, err := procfs.NewFS(c.mountPoint)
	if err != nil {
		c.logger.With("err", err).Debug("procfs unavailable")
		return false
	}
	procs, err := fs.AllProcs()
	if err != nil {
		c.logger.With("err", err).Debug("failed to list processes")
		return false
	}
	for _, p := range procs {
		if comm, err := p.Comm(); err == nil && commMatches(comm, name) {
			return true
		}
		if exe, err := p.Executable(); err == nil && exe != "" && nameMatches(filepath.Base(exe), name) {
			return true
		}
	}
	return false
}

func nameMatches(candidate, name string) bool {
	if strings.EqualFold(candidate, name) {
		return true
	}
	// Windows-style names are configured with their extension
	return strings.EqualFold(candidate, strings.TrimSuffix(strings.ToLower(name), ".exe"))
}

func commMatches(comm, name string) bool {
	if nameMatches(comm, name) {
		return true
	}
	return len(comm) == commLen && len(name) > commLen && strings.EqualFold(comm, name[:commLen])
}
