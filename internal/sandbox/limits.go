package sandbox

// ResourceLimits caps a plugin's resource consumption. A nil pointer field
// means unlimited for that dimension.
type ResourceLimits struct {
	MaxMemoryMB            *uint64
	MaxCPUTimeMS           *uint64
	MaxExecutionTimeMS     *uint64
	MaxFileSizeMB          *uint64
	MaxOpenFiles           *uint32
	MaxNetworkConnections  *uint32
}

func u64(v uint64) *uint64 { return &v }
func u32(v uint32) *uint32 { return &v }

// DefaultResourceLimits mirrors the original sandbox's default() constructor.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB:           u64(256),
		MaxCPUTimeMS:          u64(30_000),
		MaxExecutionTimeMS:    u64(60_000),
		MaxFileSizeMB:         u64(100),
		MaxOpenFiles:          u32(100),
		MaxNetworkConnections: u32(10),
	}
}

// RestrictedResourceLimits mirrors the original sandbox's restricted() constructor.
func RestrictedResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB:           u64(64),
		MaxCPUTimeMS:          u64(5_000),
		MaxExecutionTimeMS:    u64(10_000),
		MaxFileSizeMB:         u64(10),
		MaxOpenFiles:          u32(10),
		MaxNetworkConnections: u32(2),
	}
}

// UnlimitedResourceLimits mirrors the original sandbox's unlimited() constructor.
func UnlimitedResourceLimits() ResourceLimits {
	return ResourceLimits{}
}

// ResourceUsage is the live counter set checked against ResourceLimits.
type ResourceUsage struct {
	CurrentMemoryMB    uint64
	TotalCPUTimeMS      uint64
	OpenFiles           uint32
	ActiveConnections   uint32
}
