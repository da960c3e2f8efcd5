package abi

const (
	BY2PG   = 4096
	PGSHIFT = 12
	PDSHIFT = 22

	// BY2PG * 1024, the span of one second level page table.
	PDMAP = 4 * 1024 * 1024
)

// User address space layout. Everything at or above UTOP belongs to the
// kernel.
const (
	ULIM       = 0x80000000
	UVPT       = ULIM - PDMAP
	UPAGES     = UVPT - PDMAP
	UENVS      = UPAGES - PDMAP
	UTOP       = UENVS
	UXSTACKTOP = UTOP
	USTACKTOP  = UTOP - 2*BY2PG
	UTEXT      = 0x00400000
)

// Page table entry permission bits.
const (
	PTE_COW     = 0x0001
	PTE_LIBRARY = 0x0004
	PTE_G       = 0x0100
	PTE_V       = 0x0200
	PTE_R       = 0x0400
	PTE_UC      = 0x0800

	PTE_PERM_MASK = 0x0fff
)

func RoundDown(va uint32) uint32 {
	return va &^ (BY2PG - 1)
}

func PageAligned(va uint32) bool {
	return va%BY2PG == 0
}
