package format

type (
	RoleTag         uint8
	CompressionType uint8
)

const (
	RoleInvalid    RoleTag = 0x0 // RoleInvalid is never valid in a serialized container.
	RoleKernel     RoleTag = 0x1 // RoleKernel holds a bootable kernel image.
	RoleDeviceTree RoleTag = 0x2 // RoleDeviceTree holds a flattened device tree blob.
	RoleRootfs     RoleTag = 0x3 // RoleRootfs holds a root filesystem image.
	RoleConfig     RoleTag = 0x4 // RoleConfig holds opaque configuration data.
	RoleOther      RoleTag = 0x5 // RoleOther holds any other payload; repeatable per container.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

func (r RoleTag) String() string {
	switch r {
	case RoleKernel:
		return "kernel"
	case RoleDeviceTree:
		return "dtb"
	case RoleRootfs:
		return "rootfs"
	case RoleConfig:
		return "config"
	case RoleOther:
		return "other"
	default:
		return "invalid"
	}
}

// IsValid reports whether the role tag is one of the serializable roles.
func (r RoleTag) IsValid() bool {
	return r >= RoleKernel && r <= RoleOther
}

// Repeatable reports whether the role may appear more than once in a
// container. Only RoleOther is repeatable; every other role must be unique.
func (r RoleTag) Repeatable() bool {
	return r == RoleOther
}

// Loadable reports whether load address and entry point are meaningful for
// this role. Non-loadable roles serialize both fields as zero.
func (r RoleTag) Loadable() bool {
	return r == RoleKernel
}

// ParseRoleTag converts a role name (as printed by String) back to a RoleTag.
// Returns RoleInvalid and false for unknown names.
func ParseRoleTag(name string) (RoleTag, bool) {
	switch name {
	case "kernel":
		return RoleKernel, true
	case "dtb":
		return RoleDeviceTree, true
	case "rootfs":
		return RoleRootfs, true
	case "config":
		return RoleConfig, true
	case "other":
		return RoleOther, true
	default:
		return RoleInvalid, false
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// IsValid reports whether the compression type is a known wire value.
func (c CompressionType) IsValid() bool {
	return c >= CompressionNone && c <= CompressionLZ4
}

// ParseCompressionType converts a compression name back to a CompressionType.
// Returns false for unknown names.
func ParseCompressionType(name string) (CompressionType, bool) {
	switch name {
	case "none":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "s2":
		return CompressionS2, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}
