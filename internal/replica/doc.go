// Package replica copies a live SQLite database into a standalone snapshot
// file while the database stays in use.
//
// A replication attempt moves through these phases, each logged at LevelTrace:
//
//	idle → lock_acquiring → access_acquiring → snapshotting → lock_released → idle
//
// The exclusive file lock on the target is always taken before the source
// lease is requested. Anything that holds the source lease and then waits on
// the target's lock would otherwise deadlock against a replication.
//
// The snapshot is made with VACUUM INTO, which reads the source inside one
// transaction and is safe under concurrent writers in any journal mode.
package replica
