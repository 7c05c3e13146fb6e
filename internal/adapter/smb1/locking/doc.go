// Package locking implements the SMB1 byte-range lock protocol on top of
// the process-wide lock table.
//
// A LOCKING_ANDX request is decoded into a Batch. Unlocks are applied
// first and unconditionally; locks are then taken in order and the batch is
// all-or-nothing: if a lock cannot be granted, every lock granted earlier
// in the same batch is released before the error surfaces.
//
// A conflicting batch with a non-zero timeout is parked as a Waiter. The
// waiter retries whenever a lock on the same file is released and resolves
// exactly once: granted, timed out, cancelled, or closed.
package locking
