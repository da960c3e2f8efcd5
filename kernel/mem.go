package kernel

import (
	"github.com/evanphx/mosk/abi"
	"github.com/pkg/errors"
)

// AllocPage allocates a zeroed page and maps it at va in env id with perm,
// replacing whatever was mapped there. Arguments are validated before any
// frame is taken.
func (k *Kernel) AllocPage(caller *Env, id EnvID, va, perm uint32) error {
	if !userVA(va, true) {
		return errors.Wrapf(ErrInval, "mem_alloc: illegal va=%x", va)
	}

	if d := CheckAllocPerm(perm); d != PermOK {
		return errors.Wrapf(d.Err(), "mem_alloc: perm=%x", perm)
	}

	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	f, err := k.frames.Alloc()
	if err != nil {
		return errors.Wrapf(ErrNoMem, "mem_alloc: %s", err)
	}

	if err := e.Pgdir.Insert(f, va, perm); err != nil {
		k.frames.Free(f)
		return errors.Wrapf(ErrNoMem, "mem_alloc: %s", err)
	}

	return nil
}

// MapPage makes dstva in dstid refer to the same frame as srcva in srcid.
// Both addresses are rounded down to their page.
func (k *Kernel) MapPage(caller *Env, srcid EnvID, srcva uint32, dstid EnvID, dstva, perm uint32) error {
	src, err := k.envs.Lookup(srcid, caller, true)
	if err != nil {
		return err
	}

	dst, err := k.envs.Lookup(dstid, caller, true)
	if err != nil {
		return err
	}

	if !userVA(srcva, false) || !userVA(dstva, false) {
		return errors.Wrapf(ErrInval, "mem_map: illegal va src=%x dst=%x", srcva, dstva)
	}

	srcva = abi.RoundDown(srcva)
	dstva = abi.RoundDown(dstva)

	f, pte, ok := src.Pgdir.Lookup(srcva)
	if !ok {
		return errors.Wrapf(ErrInval, "mem_map: nothing mapped at %x in %s", srcva, src.ID)
	}

	if d := CheckMapPerm(perm, pte.Perm()); d != PermOK {
		return errors.Wrapf(d.Err(), "mem_map: perm=%x source=%x", perm, pte.Perm())
	}

	if err := dst.Pgdir.Insert(f, dstva, perm); err != nil {
		return errors.Wrapf(ErrNoMem, "mem_map: %s", err)
	}

	return nil
}

// UnmapPage removes the mapping at va in env id. Unmapping an address that
// has no mapping succeeds.
func (k *Kernel) UnmapPage(caller *Env, id EnvID, va uint32) error {
	if !userVA(va, true) {
		return errors.Wrapf(ErrInval, "mem_unmap: illegal va=%x", va)
	}

	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	e.Pgdir.Remove(va)
	return nil
}
