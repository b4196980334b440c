// Package batchapi is a client for OpenAI-compatible file and batch job
// endpoints (DashScope compatible mode by default). It uploads request files,
// creates and polls batch jobs, and downloads result files to local disk.
package batchapi
