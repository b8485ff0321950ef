// Package system builds the process logger and carries request-scoped logging
// helpers for the HTTP ingestion endpoint.
package system
