package diag

import (
	"runtime"
)

// CriticalSection runs code that may stall the flash, such as asserting
// /HOLD. Everything fn reaches must be resident outside the flash being
// tested: an instruction fetch from it while /HOLD is low never completes.
type CriticalSection interface {
	// ResidentOutsideFlash confirms the precondition above. The hold test
	// refuses to run when it is false.
	ResidentOutsideFlash() bool
	Run(fn func() error) error
}

// HostSection is the critical section of a host that reaches the flash
// through a bridge. Its code runs from host memory; the goroutine is kept on
// one thread so that no other bridge user is scheduled in between.
type HostSection struct{}

func (HostSection) ResidentOutsideFlash() bool {
	return true
}

func (HostSection) Run(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	return fn()
}
