// Package generation builds the batch input files sent to the remote API.
// Each task becomes one JSONL line holding an OpenAI-style chat completion
// request with a system message and the task content as the user message.
package generation
