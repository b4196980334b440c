// Package task owns the lifecycle of batch tasks: submission to the remote
// batch API, cancellation, deletion, and the periodic reconciliation of local
// task state with the remote job until a terminal outcome is reached.
//
// Engine performs every per-task operation under a lock keyed by task ID, so
// foreground requests and the background Scheduler never interleave their
// read-modify-write sequences on the same task.
package task
