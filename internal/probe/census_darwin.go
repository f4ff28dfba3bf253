//go:build darwin

package probe

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// kernelTablePIDs snapshots the kernel process table directly via sysctl,
// below the layers a user-space rootkit typically hooks.
func kernelTablePIDs(_ context.Context) ([]int32, error) {
	procs, err := unix.SysctlKinfoProcSlice("kern.proc.all")
	if err != nil {
		return nil, fmt.Errorf("kern.proc.all sysctl: %w", err)
	}

	pids := make([]int32, 0, len(procs))
	for _, kp := range procs {
		pids = append(pids, kp.Proc.P_pid)
	}
	return pids, nil
}
