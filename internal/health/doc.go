// Package health exposes liveness, readiness, and metrics HTTP endpoints for
// the ingestion core, following Kubernetes health check conventions.
//
// API defines the thin-delegation boundary: the HTTP server decodes
// requests and encodes responses but never computes health status itself.
// Monitor implements API against a session registry and the process's
// memory (RSS) and goroutine count.
package health
