// Package abi holds the numbers shared between the kernel and user
// programs: error codes, syscall numbers, memory layout and PTE bits.
package abi

// Error codes. Syscalls return them negated.
const (
	E_UNSPECIFIED  = 1
	E_BAD_ENV      = 2
	E_INVAL        = 3
	E_NO_MEM       = 4
	E_NO_FREE_ENV  = 5
	E_IPC_NOT_RECV = 6
)

var ErrorNames = map[int32]string{
	E_UNSPECIFIED:  "unspecified error",
	E_BAD_ENV:      "bad environment",
	E_INVAL:        "invalid parameter",
	E_NO_MEM:       "out of memory",
	E_NO_FREE_ENV:  "out of environments",
	E_IPC_NOT_RECV: "env is not recving",
}
