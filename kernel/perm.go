package kernel

import (
	"github.com/evanphx/mosk/abi"
	"github.com/pkg/errors"
)

// PermDecision is the outcome of checking the permission bits a caller
// asks for when installing a mapping.
type PermDecision int

const (
	PermOK PermDecision = iota
	PermNotValid
	PermCOW
	PermEscalates
)

func (d PermDecision) String() string {
	switch d {
	case PermOK:
		return "ok"
	case PermNotValid:
		return "PTE_V not set"
	case PermCOW:
		return "PTE_COW not allowed"
	case PermEscalates:
		return "grants more than the source mapping"
	default:
		return "unknown"
	}
}

// Err is nil for PermOK and an InvalidArgument error otherwise.
func (d PermDecision) Err() error {
	if d == PermOK {
		return nil
	}

	return errors.Wrap(ErrInval, d.String())
}

// escalating bits may only be carried over from a mapping that has them.
const escalatingBits = abi.PTE_R | abi.PTE_LIBRARY

// CheckAllocPerm validates perm for mapping a freshly allocated page:
// PTE_V is required and PTE_COW is refused. Other bits pass through.
func CheckAllocPerm(perm uint32) PermDecision {
	if perm&abi.PTE_V == 0 {
		return PermNotValid
	}

	if perm&abi.PTE_COW != 0 {
		return PermCOW
	}

	return PermOK
}

// CheckMapPerm validates perm for aliasing a page whose existing mapping
// has srcPerm. PTE_V is required, and writable or shared access may only
// be kept or dropped, never added.
func CheckMapPerm(perm, srcPerm uint32) PermDecision {
	if perm&abi.PTE_V == 0 {
		return PermNotValid
	}

	if perm&escalatingBits&^srcPerm != 0 {
		return PermEscalates
	}

	return PermOK
}

// userVA reports whether va is a user address, optionally also requiring
// page alignment.
func userVA(va uint32, aligned bool) bool {
	if va >= abi.UTOP {
		return false
	}

	return !aligned || abi.PageAligned(va)
}
