// Package access arbitrates use of a store.Handle through leases.
//
// A handle admits one lease at a time. Each lease owns a serial executor: a
// goroutine that runs the lease's operations one after another, so the
// underlying SQLite connection is never used from two goroutines at once.
//
// Two variants exist:
//   - Blocking: WithAccess waits for the operation and returns its error.
//   - NonBlocking: WithAccess queues the operation and returns at once.
//     Operations run in submission order; failures are logged.
//
// # Reentrancy
//
// Operations receive a context marked with the executor's token. Passing that
// context (or the lease itself as parent) back into WithAccess runs the nested
// operation inline rather than queueing it behind itself. The marks
// accumulate, so an operation on lease A that waits on lease B lets B's
// operation call back into A.
//
// # Disposal
//
// Dispose is one-way. Queued operations still run; new ones are refused with
// ErrDisposed (Blocking) or logged and dropped (NonBlocking). The handle's
// lease slot is released once the executor has drained.
package access
