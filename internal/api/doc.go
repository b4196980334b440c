// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the task engine, translating HTTP concerns to task and batch operations.
package api
