// Package api implements the Gin-based HTTP ingestion server: log records
// posted to /api/logs are written through the configured transports, next to
// health, build info and Prometheus endpoints.
package api
