// Package common provides small shared interfaces and helpers used across
// the registry, worker pool, and RPC server to keep shutdown behavior
// consistent.
package common
