/*
Kernel code distinguishes two kinds of failure.

Recoverable failures (running out of free pages, a failed disk transfer) are
returned to the caller as ordinary errors.

Invariant violations (freeing a misaligned page, releasing a buffer whose lock
is not held, a reference count going below zero) mean that bookkeeping is
already corrupted. Continuing would corrupt unrelated state, so these abort
immediately through Panic and are never returned as errors.
*/
package common

// Panic logs err and aborts the current execution context.
// err should wrap one of the sentinel errors of the calling package
// so that the reason can be identified with errors.Is after recover().
func Panic(err error) {
	L.Error("panic", "err", err)
	panic(err)
}
