// Package log provides structured logging via zerolog: a global
// package-level Logger initialized once by Init, plus helpers that
// derive child loggers carrying a fixed field (component, node_id,
// vm_id, task_id) so callers don't repeat context at every call site.
package log
