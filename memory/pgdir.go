package memory

import (
	"bytes"
	"encoding/binary"

	"github.com/evanphx/mosk/abi"
	"github.com/pkg/errors"
)

const entriesPerTable = abi.BY2PG / 4

// PTE is a page table entry: the frame number in the upper bits and the
// permission bits in the low 12.
type PTE uint32

func MakePTE(f Frame, perm uint32) PTE {
	return PTE(f.Address() | (perm & abi.PTE_PERM_MASK))
}

func (p PTE) Frame() Frame {
	return FrameFromAddress(uint32(p))
}

func (p PTE) Perm() uint32 {
	return uint32(p) & abi.PTE_PERM_MASK
}

func (p PTE) Valid() bool {
	return uint32(p)&abi.PTE_V != 0
}

func PDX(va uint32) uint32 {
	return va >> abi.PDSHIFT
}

func PTX(va uint32) uint32 {
	return (va >> abi.PGSHIFT) & (entriesPerTable - 1)
}

type pageTable struct {
	frame Frame
	ptes  [entriesPerTable]PTE
}

var (
	ErrFault = errors.New("invalid memory access")
)

// AddressSpace is a two level page directory. The directory and every
// second level table each occupy a frame from the allocator, so building
// tables can run out of memory just like mapping pages can.
type AddressSpace struct {
	fa *FrameAllocator

	frame Frame
	dir   [entriesPerTable]*pageTable
}

func NewAddressSpace(fa *FrameAllocator) (*AddressSpace, error) {
	f, err := fa.Alloc()
	if err != nil {
		return nil, errors.Wrap(err, "allocating page directory")
	}

	return &AddressSpace{fa: fa, frame: f}, nil
}

func (as *AddressSpace) walk(va uint32, create bool) (*PTE, error) {
	pt := as.dir[PDX(va)]
	if pt == nil {
		if !create {
			return nil, nil
		}

		f, err := as.fa.Alloc()
		if err != nil {
			return nil, err
		}

		pt = &pageTable{frame: f}
		as.dir[PDX(va)] = pt
	}

	return &pt.ptes[PTX(va)], nil
}

// Insert maps frame f at va with perm. PTE_V is always added. Any other
// frame mapped at va is removed first; reinserting the same frame only
// updates its permissions.
func (as *AddressSpace) Insert(f Frame, va uint32, perm uint32) error {
	va = abi.RoundDown(va)

	pte, _ := as.walk(va, false)
	if pte != nil && pte.Valid() {
		if pte.Frame() != f {
			as.Remove(va)
		} else {
			*pte = MakePTE(f, perm|abi.PTE_V)
			return nil
		}
	}

	pte, err := as.walk(va, true)
	if err != nil {
		return errors.Wrapf(err, "inserting va=%x", va)
	}

	*pte = MakePTE(f, perm|abi.PTE_V)
	as.fa.IncRef(f)

	return nil
}

// Lookup returns the frame mapped at va along with its entry.
func (as *AddressSpace) Lookup(va uint32) (Frame, PTE, bool) {
	pte, _ := as.walk(va, false)
	if pte == nil || !pte.Valid() {
		return 0, 0, false
	}

	return pte.Frame(), *pte, true
}

// Remove unmaps va. Removing an address with no mapping does nothing.
func (as *AddressSpace) Remove(va uint32) {
	pte, _ := as.walk(va, false)
	if pte == nil || !pte.Valid() {
		return
	}

	f := pte.Frame()
	*pte = 0
	as.fa.DecRef(f)
}

// Walk calls fn for every valid mapping in ascending address order.
func (as *AddressSpace) Walk(fn func(va uint32, pte PTE)) {
	for pdx, pt := range as.dir {
		if pt == nil {
			continue
		}

		for ptx, pte := range pt.ptes {
			if pte.Valid() {
				fn(uint32(pdx)<<abi.PDSHIFT|uint32(ptx)<<abi.PGSHIFT, pte)
			}
		}
	}
}

// Release drops every user mapping below UTOP and frees the page tables
// and the directory. The address space must not be used afterwards.
func (as *AddressSpace) Release() {
	for pdx, pt := range as.dir {
		if pt == nil {
			continue
		}

		if uint32(pdx)<<abi.PDSHIFT < abi.UTOP {
			for ptx := range pt.ptes {
				if pt.ptes[ptx].Valid() {
					f := pt.ptes[ptx].Frame()
					pt.ptes[ptx] = 0
					as.fa.DecRef(f)
				}
			}
		}

		as.dir[pdx] = nil
		as.fa.Free(pt.frame)
	}

	as.fa.Free(as.frame)
}

func (as *AddressSpace) project(va uint32, write bool) ([]byte, error) {
	f, pte, ok := as.Lookup(va)
	if !ok {
		return nil, errors.Wrapf(ErrFault, "no mapping for va=%x", va)
	}

	if write && (pte.Perm()&abi.PTE_R == 0 || pte.Perm()&abi.PTE_COW != 0) {
		return nil, errors.Wrapf(ErrFault, "write to read-only va=%x", va)
	}

	off := va & (abi.BY2PG - 1)

	return as.fa.Bytes(f)[off:], nil
}

func (as *AddressSpace) Load32(va uint32) (uint32, error) {
	if va%4 != 0 {
		return 0, errors.Wrapf(ErrFault, "unaligned load va=%x", va)
	}

	mem, err := as.project(va, false)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(mem), nil
}

func (as *AddressSpace) Store32(va, val uint32) error {
	if va%4 != 0 {
		return errors.Wrapf(ErrFault, "unaligned store va=%x", va)
	}

	mem, err := as.project(va, true)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(mem, val)
	return nil
}

// ReadCString reads a NUL terminated string starting at va, giving up
// after max bytes.
func (as *AddressSpace) ReadCString(va uint32, max int) ([]byte, error) {
	var buf bytes.Buffer

	for buf.Len() < max {
		mem, err := as.project(va, false)
		if err != nil {
			return nil, err
		}

		if i := bytes.IndexByte(mem, 0); i >= 0 {
			buf.Write(mem[:i])
			break
		}

		buf.Write(mem)
		va += uint32(len(mem))
	}

	if buf.Len() > max {
		buf.Truncate(max)
	}

	return buf.Bytes(), nil
}
