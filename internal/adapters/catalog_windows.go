//go:build windows

package adapters

import "golang.org/x/sys/windows"

// isAccessible probes for the existence of path via a direct Win32 call,
// mirroring the teacher's internal/service/service_windows.go platform split.
func isAccessible(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	return err == nil && attrs != windows.INVALID_FILE_ATTRIBUTES
}
