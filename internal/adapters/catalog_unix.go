//go:build !windows

package adapters

import "golang.org/x/sys/unix"

// isAccessible probes for the existence of path via a direct syscall rather
// than os.Stat, mirroring the teacher's platform-specific liveness checks in
// internal/service/linux_platform_manager.go.
func isAccessible(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}
