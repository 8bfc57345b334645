//go:build !unix

package process

import (
	"os"
	"syscall"
)

func newSysProcAttr() *syscall.SysProcAttr {
	return nil
}

func interruptGroup(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func killGroup(p *os.Process) error {
	return p.Kill()
}

// Windows exit codes are unsigned and already normalised by ExitCode.
func signalExitCode(_ *os.ProcessState) (int, bool) {
	return 0, false
}
