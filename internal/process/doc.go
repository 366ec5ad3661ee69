// Package process runs external programs under supervision.
//
// A supervised process is always brought to a terminal state before the
// call that owns it returns: on normal completion, on failure, on timeout
// and on context cancellation. Termination escalates from SIGTERM to
// SIGKILL and is sent to the process group of the child. Anything the child
// left running in its group is stopped the same way once the child exits.
//
// Output is drained without blocking, one non-blocking read per stream per
// tick, so a chatty stderr can never stall a caller that is consuming
// stdout. The package only builds on unix.
package process
