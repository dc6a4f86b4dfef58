// Package sandbox implements per-plugin capability-and-quota enforcement:
// permission checks, path/host allow-deny lists, resource-limit accounting,
// and a violation log, ported from the original Rust plugin sandbox.
package sandbox

// Permission is the hierarchical capability enumeration every plugin grant is
// expressed in terms of.
type Permission string

const (
	FilesystemRead  Permission = "filesystem:read"
	FilesystemWrite Permission = "filesystem:write"
	Filesystem      Permission = "filesystem"
	NetworkInbound  Permission = "network:inbound"
	NetworkOutbound Permission = "network:outbound"
	Network         Permission = "network"
	DatabaseRead    Permission = "database:read"
	DatabaseWrite   Permission = "database:write"
	Database        Permission = "database"
	SystemMetrics   Permission = "system_metrics"
	ProcessSpawn    Permission = "process_spawn"
	Environment     Permission = "environment"
	All             Permission = "all"
)

// Implies reports whether holding p authorizes other. All implies everything;
// each group implies its own leaves; every other pair requires exact equality.
func (p Permission) Implies(other Permission) bool {
	if p == All {
		return true
	}
	if p == other {
		return true
	}
	switch p {
	case Filesystem:
		return other == FilesystemRead || other == FilesystemWrite
	case Network:
		return other == NetworkOutbound || other == NetworkInbound
	case Database:
		return other == DatabaseRead || other == DatabaseWrite
	default:
		return false
	}
}

func (p Permission) String() string { return string(p) }
