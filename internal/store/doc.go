// Package store owns the native SQLite connection behind a storage handle.
//
// A Handle wraps one database location (a file path or InMemory) and provides:
//   - Lazy connection: nothing is opened until the first statement call
//   - The lease slot: at most one access lease may be registered at a time
//   - Statement lifecycle: Prepare, Bind, Step, column reads, Reset, Finalize
//   - SnapshotInto: a transactionally consistent VACUUM INTO copy
//   - Drop: close and delete the backing files
//
// # Concurrency
//
// SQLite connections must not be used from two goroutines at once. The Handle
// does not serialize statement calls itself; that is the job of the lease
// registered in its slot (see package access). The only locks inside a Handle
// are two short mutexes: one for connection state and one for the lease slot.
// Neither is held while a statement runs.
//
// # Errors
//
// Every failing SQLite call surfaces as *EngineError carrying the result code
// and message. A failed open surfaces as *ConnectionError and leaves the handle
// disconnected so the next call retries.
//
// # Database Configuration
//
//   - journal_mode: WAL unless WithJournalMode says otherwise
//   - synchronous=NORMAL
//   - busy_timeout: 5000ms unless WithBusyTimeout or SetBusyTimeout says otherwise
//   - foreign_keys=ON
//   - now_ms(): SQL function backed by the handle's Clock
package store
