// Package domain contains the core entities of the batch relay: the Task
// tracked locally for each remote batch job and its status state machine.
// It is independent of storage, transport and the remote API client.
package domain
