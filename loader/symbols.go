package loader

import (
	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
)

// Symbols are predefined for every program.
var Symbols = map[string]int64{
	"BY2PG":      abi.BY2PG,
	"UTOP":       abi.UTOP,
	"ULIM":       abi.ULIM,
	"UTEXT":      abi.UTEXT,
	"USTACKTOP":  abi.USTACKTOP,
	"UXSTACKTOP": abi.UXSTACKTOP,

	"PTE_COW":     abi.PTE_COW,
	"PTE_LIBRARY": abi.PTE_LIBRARY,
	"PTE_G":       abi.PTE_G,
	"PTE_V":       abi.PTE_V,
	"PTE_R":       abi.PTE_R,
	"PTE_UC":      abi.PTE_UC,

	"ENV_FREE":         abi.ENV_FREE,
	"ENV_RUNNABLE":     abi.ENV_RUNNABLE,
	"ENV_NOT_RUNNABLE": abi.ENV_NOT_RUNNABLE,

	"E_UNSPECIFIED":  abi.E_UNSPECIFIED,
	"E_BAD_ENV":      abi.E_BAD_ENV,
	"E_INVAL":        abi.E_INVAL,
	"E_NO_MEM":       abi.E_NO_MEM,
	"E_NO_FREE_ENV":  abi.E_NO_FREE_ENV,
	"E_IPC_NOT_RECV": abi.E_IPC_NOT_RECV,

	"ENV_ID":          exec.EnvFieldID,
	"ENV_PARENT":      exec.EnvFieldParent,
	"ENV_IPC_VALUE":   exec.EnvFieldIPCValue,
	"ENV_IPC_FROM":    exec.EnvFieldIPCFrom,
	"ENV_IPC_PERM":    exec.EnvFieldIPCPerm,
	"ENV_IPC_RECVING": exec.EnvFieldIPCRecving,
}

func init() {
	for num, name := range abi.SyscallNames {
		Symbols["SYS_"+name] = int64(num)
	}
}
