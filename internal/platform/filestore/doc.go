// Package filestore stores task artifacts (staged request files and
// downloaded output/error files) in task-scoped directories on local disk.
package filestore
