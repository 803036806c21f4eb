//go:build !linux

package supervisor

import "os/exec"

// configureParentDeathSignal is a no-op outside Linux: no portable
// equivalent of prctl(PR_SET_PDEATHSIG) is wired here, so the "no zombies"
// guarantee from spec §4.3 does not hold on these platforms. Spec §1 scopes
// support to POSIX systems providing anonymous pipes and fd inheritance;
// §9 explicitly calls out that an implementation must pick an equivalent
// primitive per platform or document the gap, which this does.
func configureParentDeathSignal(cmd *exec.Cmd) {}
