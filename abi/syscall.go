package abi

const SyscallBase = 9527

const (
	SYS_putchar = SyscallBase + iota
	SYS_getenvid
	SYS_yield
	SYS_env_destroy
	SYS_set_pgfault_handler
	SYS_mem_alloc
	SYS_mem_map
	SYS_mem_unmap
	SYS_env_alloc
	SYS_set_env_status
	SYS_set_trapframe
	SYS_panic
	SYS_ipc_can_send
	SYS_ipc_recv

	syscallEnd
)

const NumSyscalls = syscallEnd - SyscallBase

var SyscallNames = map[uint32]string{
	SYS_putchar:             "putchar",
	SYS_getenvid:            "getenvid",
	SYS_yield:               "yield",
	SYS_env_destroy:         "env_destroy",
	SYS_set_pgfault_handler: "set_pgfault_handler",
	SYS_mem_alloc:           "mem_alloc",
	SYS_mem_map:             "mem_map",
	SYS_mem_unmap:           "mem_unmap",
	SYS_env_alloc:           "env_alloc",
	SYS_set_env_status:      "set_env_status",
	SYS_set_trapframe:       "set_trapframe",
	SYS_panic:               "panic",
	SYS_ipc_can_send:        "ipc_can_send",
	SYS_ipc_recv:            "ipc_recv",
}

// Environment status values as seen by user programs.
const (
	ENV_FREE         = 0
	ENV_RUNNABLE     = 1
	ENV_NOT_RUNNABLE = 2
)
