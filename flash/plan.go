package flash

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nimage-project/nimage/format"
)

// Region is one target write destination: a byte range on the device
// assigned to a segment role.
type Region struct {
	Role   format.RoleTag
	Offset uint64
	Length uint64
}

// Plan maps segment roles to device regions. Region order is write order:
// the Writer writes regions strictly in the order they appear, so callers
// put boot-critical regions last to keep a device bootable if the sequence
// is interrupted. Ordering is configuration, never hardcoded policy.
type Plan struct {
	Regions []Region
}

// Find returns the region for a role, or false if the role is not planned.
func (p *Plan) Find(role format.RoleTag) (Region, bool) {
	for _, reg := range p.Regions {
		if reg.Role == role {
			return reg, true
		}
	}

	return Region{}, false
}

// Validate checks that every region names a valid role, has a non-zero
// length, appears at most once, and does not overlap any other region.
func (p *Plan) Validate() error {
	if len(p.Regions) == 0 {
		return fmt.Errorf("flash plan has no regions")
	}

	seen := make(map[format.RoleTag]bool, len(p.Regions))
	for i, reg := range p.Regions {
		if !reg.Role.IsValid() {
			return fmt.Errorf("region %d: invalid role tag 0x%02x", i, uint8(reg.Role))
		}
		if seen[reg.Role] {
			return fmt.Errorf("region %d: role %s planned twice", i, reg.Role)
		}
		seen[reg.Role] = true

		if reg.Length == 0 {
			return fmt.Errorf("region %d (%s): zero length", i, reg.Role)
		}
		if reg.Offset+reg.Length < reg.Offset {
			return fmt.Errorf("region %d (%s): length overflows", i, reg.Role)
		}

		for j, other := range p.Regions[:i] {
			if reg.Offset < other.Offset+other.Length && other.Offset < reg.Offset+reg.Length {
				return fmt.Errorf("region %d (%s) overlaps region %d (%s)", i, reg.Role, j, other.Role)
			}
		}
	}

	return nil
}

// planDoc is the YAML representation of a Plan.
type planDoc struct {
	Regions []regionDoc `yaml:"regions"`
}

type regionDoc struct {
	Role   string `yaml:"role"`
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
}

// ParsePlan parses a YAML flash plan:
//
//	regions:
//	  - role: rootfs
//	    offset: 0x400000
//	    length: 0x10000000
//	  - role: kernel
//	    offset: 0x100000
//	    length: 0x300000
//
// Region order in the document is write order.
func ParsePlan(data []byte) (*Plan, error) {
	var doc planDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing flash plan: %w", err)
	}

	plan := &Plan{Regions: make([]Region, 0, len(doc.Regions))}
	for i, reg := range doc.Regions {
		role, ok := format.ParseRoleTag(reg.Role)
		if !ok {
			return nil, fmt.Errorf("region %d: unknown role %q", i, reg.Role)
		}
		plan.Regions = append(plan.Regions, Region{Role: role, Offset: reg.Offset, Length: reg.Length})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}

// LoadPlan reads and parses a YAML flash plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flash plan: %w", err)
	}

	return ParsePlan(data)
}
