//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureParentDeathSignal arranges for the kernel to deliver SIGKILL to
// the child if this process dies first, per spec §4.3's "Parent-death
// linkage" and §9's design note. Grounded on chromedp's allocate_linux.go,
// which uses the same Pdeathsig field for the identical purpose.
func configureParentDeathSignal(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
